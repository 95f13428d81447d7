package contract

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/oasgate/styles"
)

const paramsDoc = `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets/{petId}:
    get:
      operationId: getPet
      parameters:
        - name: petId
          in: path
          required: true
          schema: {type: string}
        - name: limit
          in: query
          schema: {type: integer}
        - name: tags
          in: query
          explode: false
          schema:
            type: array
            items: {type: string}
        - name: filter
          in: query
          style: deepObject
          explode: true
          schema: {type: object}
        - name: X-Trace
          in: header
          schema: {type: string}
        - name: session
          in: cookie
          schema: {type: string}
      responses:
        "200": {description: ok}
`

func TestExtractParams_AllLocations(t *testing.T) {
	d := compileYAML(t, paramsDoc)

	req := httptest.NewRequest("GET", "/pets/42?limit=5&tags=a,b&filter[species]=cat", nil)
	req.Header.Set("X-Trace", "abc")
	req.AddCookie(&http.Cookie{Name: "session", Value: "s1"})

	res, ok := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	require.True(t, ok)
	pc := styles.NewParseContext(req.URL.RawQuery)
	params, issues := res.Operation.ExtractParams(res, req, pc)
	require.Empty(t, issues)

	assert.Equal(t, "42", params.Path["petId"])
	assert.Equal(t, float64(5), params.Query["limit"], "integer schema coerces the raw string")
	assert.Equal(t, []any{"a", "b"}, params.Query["tags"])
	assert.Equal(t, map[string]any{"species": "cat"}, params.Query["filter"])
	assert.Equal(t, "abc", params.Header["X-Trace"])
	assert.Equal(t, "s1", params.Cookie["session"])
}

func TestExtractParams_StringSchemaKeepsDigits(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: myparam
          in: query
          schema: {type: string}
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/pets?myparam=7", nil)
	res, _ := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues)
	assert.Equal(t, "7", params.Query["myparam"], "no numeric guessing for string schemas")
}

func TestExtractParams_MissingRequired(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: limit
          in: query
          required: true
          schema: {type: integer}
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/pets", nil)
	res, _ := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	_, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Len(t, issues, 1)
	assert.Equal(t, `missing required parameter "limit" in query`, issues[0].Message)
	require.NotNil(t, issues[0].Location)
	assert.Equal(t, "query", issues[0].Location.In)
	assert.Equal(t, "limit", issues[0].Location.Name)
}

func TestExtractParams_MissingOptionalIsOmitted(t *testing.T) {
	d := compileYAML(t, paramsDoc)

	req := httptest.NewRequest("GET", "/pets/42", nil)
	res, _ := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues)

	_, present := params.Query["limit"]
	assert.False(t, present, "absent optional parameters leave no key behind")
}

func TestExtractParams_AggregatesIssuesInOrder(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: limit
          in: query
          required: true
          schema: {type: integer}
        - name: X-Trace
          in: header
          required: true
          schema: {type: string}
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/pets", nil)
	res, _ := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	_, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Len(t, issues, 2, "all problems reported at once")
	assert.Equal(t, "query", issues[0].Location.In, "query issues precede header issues")
	assert.Equal(t, "header", issues[1].Location.In)
}

func TestExtractParams_PathValuesAreDecoded(t *testing.T) {
	d := compileYAML(t, paramsDoc)

	req := httptest.NewRequest("GET", "/pets/a%2Fb", nil)
	res, _ := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues)
	assert.Equal(t, "a/b", params.Path["petId"], "extraction decodes what matching left raw")
}

func TestExtractParams_CookieObjectWithDefaults(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: prefs
          in: cookie
          schema: {type: object}
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/pets", nil)
	req.AddCookie(&http.Cookie{Name: "prefs", Value: "theme,dark"})
	res, ok := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	require.True(t, ok)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues, "a vanilla cookie object parameter must be suppliable")
	assert.Equal(t, map[string]any{"theme": "dark"}, params.Cookie["prefs"])
}

func TestExtractParams_EscapedCommaInPathArray(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
paths:
  /pets/{tags}:
    get:
      operationId: byTags
      parameters:
        - name: tags
          in: path
          required: true
          schema:
            type: array
            items: {type: string}
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/pets/a%2Cb,c", nil)
	res, ok := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	require.True(t, ok)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues)
	assert.Equal(t, []any{"a,b", "c"}, params.Path["tags"], "escaped commas never split elements")
}

func TestExtractParams_ServerParamsCopiedThrough(t *testing.T) {
	d := compileYAML(t, `
openapi: 3.0.3
info: {title: t, version: "1"}
x-oasgate-controller: pets
servers:
  - url: "/api/{version}"
    variables:
      version: {default: v1}
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200": {description: ok}
`)
	req := httptest.NewRequest("GET", "/api/v3/pets", nil)
	res, ok := d.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	require.True(t, ok)
	params, issues := res.Operation.ExtractParams(res, req, styles.NewParseContext(req.URL.RawQuery))
	require.Empty(t, issues)
	assert.Equal(t, "v3", params.Server["version"])
}
