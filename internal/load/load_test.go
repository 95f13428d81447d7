package load

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const minimalV3 = `openapi: 3.0.3
info:
  title: Pets
  version: "1.0"
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
`

const minimalV2 = `swagger: "2.0"
info:
  title: Pets
  version: "1.0"
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadFileV3(t *testing.T) {
	path := writeTemp(t, "api.yaml", minimalV3)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Info.Title != "Pets" {
		t.Errorf("title = %q, want Pets", doc.Info.Title)
	}
	if doc.Paths["/pets"] == nil || doc.Paths["/pets"].Get == nil {
		t.Fatal("expected GET /pets in loaded document")
	}
}

func TestLoadFileV2Converts(t *testing.T) {
	path := writeTemp(t, "api.yaml", minimalV2)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		t.Errorf("OpenAPI = %q, want 3.x after conversion", doc.OpenAPI)
	}
	if doc.Paths["/pets"] == nil || doc.Paths["/pets"].Get == nil {
		t.Fatal("expected GET /pets after conversion")
	}
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := Load(context.Background(), "   ")
	var de *SpecError
	if !errors.As(err, &de) || de.Code != InputError {
		t.Fatalf("err = %v, want SpecError with InputError", err)
	}
}

func TestLoadBlocksFileURL(t *testing.T) {
	_, err := Load(context.Background(), "file:///etc/passwd")
	var de *SpecError
	if !errors.As(err, &de) || de.Code != InputError {
		t.Fatalf("err = %v, want SpecError with InputError", err)
	}
}

func TestLoadUnsupportedScheme(t *testing.T) {
	_, err := Load(context.Background(), "ftp://example.com/api.yaml")
	var de *SpecError
	if !errors.As(err, &de) || de.Code != InputError {
		t.Fatalf("err = %v, want SpecError with InputError", err)
	}
}

func TestLoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalV3))
	}))
	defer srv.Close()

	doc, err := Load(context.Background(), srv.URL+"/api.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Info.Title != "Pets" {
		t.Errorf("title = %q, want Pets", doc.Info.Title)
	}
}

func TestLoadRetriesTransientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(minimalV3))
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestLoadDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, WithBackoffBase(time.Millisecond))
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDetectVersion(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want int
	}{
		{"v3", "openapi: 3.0.0\n", 3},
		{"v3.1", "openapi: 3.1.0\n", 3},
		{"v2", `swagger: "2.0"` + "\n", 2},
		{"unknown", "title: nope\n", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := detectVersion([]byte(tc.doc))
			if tc.want == 0 {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("detectVersion: %v", err)
			}
			if got != tc.want {
				t.Errorf("version = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRewriteV2MergesBodyParams(t *testing.T) {
	doc := `swagger: "2.0"
info: {title: t, version: "1"}
paths:
  /things:
    post:
      parameters:
        - name: a
          in: body
          required: true
          schema: {type: object}
        - name: limit
          in: query
          type: integer
        - name: b
          in: body
          schema: {type: object}
      responses:
        "200": {description: ok}
`
	var root map[string]any
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if !rewriteV2ForConversion(root) {
		t.Fatal("expected document to change")
	}

	op := root["paths"].(map[string]any)["/things"].(map[string]any)["post"].(map[string]any)
	params := op["parameters"].([]any)
	if len(params) != 2 {
		t.Fatalf("params = %d, want 2 (query + merged body)", len(params))
	}
	body := params[1].(map[string]any)
	if body["in"] != "body" {
		t.Fatalf("last param is %v, want the merged body", body["in"])
	}
	if body["required"] != true {
		t.Error("merged body should inherit required from any part")
	}
	schema := body["schema"].(map[string]any)
	if _, ok := schema["allOf"]; !ok {
		t.Errorf("want allOf schema after merge, got %v", schema)
	}
}

func TestRewriteV2NoChangeForSingleBody(t *testing.T) {
	var root map[string]any
	if err := yaml.Unmarshal([]byte(minimalV2), &root); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if rewriteV2ForConversion(root) {
		t.Error("expected no change")
	}
}
