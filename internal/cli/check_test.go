package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const fixtureDoc = `openapi: 3.0.3
info:
  title: Pets
  version: "1.0"
x-oasgate-controller: pets
components:
  securitySchemes:
    apiKey:
      type: apiKey
      in: header
      name: X-API-Key
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
    post:
      operationId: createPet
      security:
        - apiKey: []
      requestBody:
        content:
          application/json:
            schema:
              type: object
      responses:
        "201":
          description: created
  /pets/{petId}:
    get:
      operationId: getPet
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck_RequiresInput(t *testing.T) {
	t.Parallel()
	_, err := runCLI(t, "check")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "--input is required") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestCheck_ValidDocument(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	out, err := runCLI(t, "check", "--input", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "OK:") {
		t.Fatalf("expected OK summary, got:\n%s", out)
	}
	if !strings.Contains(out, "3 operations") {
		t.Fatalf("expected 3 operations, got:\n%s", out)
	}
}

func TestCheck_VerboseListsRoutes(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	out, err := runCLI(t, "check", "--input", path, "-v")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "/pets/{petId}") || !strings.Contains(out, "pets.getPet") {
		t.Fatalf("expected verbose route listing, got:\n%s", out)
	}
}

func TestCheck_BadDocumentIsUsageError(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, "not: [a spec\n")
	_, err := runCLI(t, "check", "--input", path)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
}

func TestCheck_ConfigFileInput(t *testing.T) {
	t.Parallel()
	spec := writeFixture(t, fixtureDoc)
	cfgPath := filepath.Join(t.TempDir(), "oasgate.yaml")
	if err := os.WriteFile(cfgPath, []byte("input: "+spec+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCLI(t, "--config", cfgPath, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "OK:") {
		t.Fatalf("expected OK summary, got:\n%s", out)
	}
}

func TestCheck_ConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "oasgate.yaml")
	if err := os.WriteFile(cfgPath, []byte("input: from-config.yaml\nverbose: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var captured *CheckConfig
	checkRunner = func(ctx context.Context, cmd *cobra.Command, cfg *CheckConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { checkRunner = runCheck })

	_, err := runCLI(t, "--config", cfgPath, "check", "--input", "from-flag.yaml")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured == nil {
		t.Fatal("expected config to be captured")
	}
	if captured.Input != "from-flag.yaml" {
		t.Errorf("flag must win over config file, got %q", captured.Input)
	}
	if !captured.Verbose {
		t.Error("expected verbose from config file")
	}
	if captured.ConfigPath != cfgPath {
		t.Errorf("config path mismatch: got %q", captured.ConfigPath)
	}
}

func TestCheck_UnknownConfigField(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "oasgate.yaml")
	if err := os.WriteFile(cfgPath, []byte("bogus: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := runCLI(t, "--config", cfgPath, "check")
	if err == nil || !strings.Contains(err.Error(), `unknown field "bogus"`) {
		t.Fatalf("expected unknown field error, got: %v", err)
	}
}
