package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRoutes_TableOutput(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	out, err := runCLI(t, "routes", "--input", path)
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if !strings.Contains(out, "METHOD") || !strings.Contains(out, "PATH") {
		t.Fatalf("expected table header, got:\n%s", out)
	}
	if !strings.Contains(out, "GET") || !strings.Contains(out, "/pets/{petId}") {
		t.Fatalf("expected GET /pets/{petId} row, got:\n%s", out)
	}
	if !strings.Contains(out, "apiKey") {
		t.Fatalf("expected security column for POST /pets, got:\n%s", out)
	}
}

func TestRoutes_JSONOutput(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	out, err := runCLI(t, "routes", "--input", path, "--format", "json")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parse json output: %v\n%s", err, out)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	var sawSecured bool
	for _, r := range rows {
		if r["method"] == "POST" && r["security"] == "apiKey" {
			sawSecured = true
		}
	}
	if !sawSecured {
		t.Fatalf("expected POST row with apiKey security, got: %v", rows)
	}
}

func TestRoutes_YAMLOutput(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	out, err := runCLI(t, "routes", "--input", path, "--format", "yaml")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if !strings.Contains(out, "method: GET") || !strings.Contains(out, "operationId: listPets") {
		t.Fatalf("unexpected yaml output:\n%s", out)
	}
}

func TestRoutes_ConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "oasgate.yaml")
	if err := os.WriteFile(cfgPath, []byte("input: from-config.yaml\nformat: yaml\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var captured *RoutesConfig
	routesRunner = func(ctx context.Context, cmd *cobra.Command, cfg *RoutesConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { routesRunner = runRoutes })

	_, err := runCLI(t, "--config", cfgPath, "routes", "--format", "JSON")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured == nil {
		t.Fatal("expected config to be captured")
	}
	if captured.Input != "from-config.yaml" {
		t.Errorf("input must come from config file, got %q", captured.Input)
	}
	if captured.Format != "json" {
		t.Errorf("flag must win over config file and normalize, got %q", captured.Format)
	}
}

func TestRoutes_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, fixtureDoc)
	_, err := runCLI(t, "routes", "--input", path, "--format", "xml")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), `unsupported --format "xml"`) {
		t.Fatalf("unexpected error text: %v", err)
	}
}
