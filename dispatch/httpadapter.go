package dispatch

import (
	"io"
	"net/http"
)

// Handler adapts the Runner to net/http. Unmatched requests fall through to
// next, or get a plain 404 when next is nil. Everything interesting happens
// in Dispatch; this only moves bytes.
func (r *Runner) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res, err := r.Dispatch(req.Context(), req)
		if err != nil {
			r.logger.Error().Err(err).Str("path", req.URL.Path).Msg("dispatch failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if res == nil {
			if next != nil {
				next.ServeHTTP(w, req)
				return
			}
			http.NotFound(w, req)
			return
		}
		if err := WriteResult(w, res); err != nil {
			r.logger.Error().Err(err).Msg("write response")
		}
	})
}

// WriteResult copies a Result onto a live response writer.
func WriteResult(w http.ResponseWriter, res *Result) error {
	for name, values := range res.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(res.Status)
	if res.Body == nil {
		return nil
	}
	_, err := io.Copy(w, res.Body)
	return err
}
