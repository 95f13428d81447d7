package dispatch

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mark3labs/oasgate/apierr"
)

// Result is the transport-agnostic outcome of a dispatched request. The
// adapter renders it onto whatever socket it owns; nothing here touches the
// wire.
type Result struct {
	Status  int
	Headers http.Header
	// Body is nil for empty responses.
	Body io.Reader
}

// result converts the controller outcome and any staged response state into
// a Result. A []byte or string return is sent as-is; an io.Reader streams;
// anything else is JSON-serialized with a default application/json content
// type set only if none was staged.
func (c *Context) result(out any) (*Result, error) {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	res := &Result{Status: status, Headers: c.header}

	if c.finalized {
		res.Body = c.body
		return res, nil
	}

	switch v := out.(type) {
	case nil:
		return res, nil
	case []byte:
		res.Body = bytes.NewReader(v)
	case string:
		res.Body = bytes.NewReader([]byte(v))
	case io.Reader:
		res.Body = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if res.Headers.Get("Content-Type") == "" {
			res.Headers.Set("Content-Type", "application/json")
		}
		res.Body = bytes.NewReader(data)
	}
	return res, nil
}

// errorResult renders a status-carrying error into its JSON envelope.
func errorResult(status int, envelope apierr.Envelope) *Result {
	data, err := json.Marshal(envelope)
	if err != nil {
		// The envelope is marshalable by construction; this is unreachable
		// short of memory corruption.
		data = []byte(`{"message":"internal server error"}`)
		status = http.StatusInternalServerError
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &Result{Status: status, Headers: headers, Body: bytes.NewReader(data)}
}
