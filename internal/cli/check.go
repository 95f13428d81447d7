package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/oasgate/contract"
	"github.com/mark3labs/oasgate/internal/load"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// CheckConfig captures the inputs to the check command after merging
// defaults, config file values, and CLI overrides.
type CheckConfig struct {
	Input      string
	ConfigPath string
	Verbose    bool
}

var checkRunner = runCheck

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compile an OpenAPI document and report contract errors",
		Long: "Compile an OpenAPI/Swagger document into a dispatch contract and report " +
			"anything the dispatcher would reject: malformed templates, conflicting " +
			"parameters, unparseable styles, or unresolvable content types.",
		Example: strings.TrimSpace(`  oasgate check --input api.yaml
  oasgate --config oasgate.yaml check -v`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveCheckConfig(cmd)
			if err != nil {
				return err
			}
			return checkRunner(cmd.Context(), cmd, cfg)
		},
	}

	cmd.Flags().String("input", "", "Path or URL to the OpenAPI/Swagger document")

	return cmd
}

func resolveCheckConfig(cmd *cobra.Command) (*CheckConfig, error) {
	cfg := &CheckConfig{}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyCheckConfigFromFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyCheckFlagOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}

	cfg.Input = strings.TrimSpace(cfg.Input)
	if cfg.Input == "" {
		return nil, newUsageError("check: --input is required (set via flag or config file)")
	}

	return cfg, nil
}

func applyCheckFlagOverrides(flags *pflag.FlagSet, cfg *CheckConfig) error {
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = value
	}
	return nil
}

func applyCheckConfigFromFile(cfg *CheckConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		switch normalizeKey(key) {
		case "input":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Input = str
		case "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Verbose = val
		case "format":
			// Shared config files may carry routes settings; ignore them here.
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
	}

	return nil
}

func runCheck(ctx context.Context, cmd *cobra.Command, cfg *CheckConfig) error {
	doc, err := loadDocument(ctx, cfg.Input)
	if err != nil {
		return err
	}

	compiled, err := contract.Compile(doc,
		contract.WithAllowMissingControllers(true),
		contract.WithAllowMissingAuthenticators(true),
	)
	if err != nil {
		return fmt.Errorf("contract: %w", err)
	}

	ops := 0
	for _, p := range compiled.Paths {
		ops += len(p.Operations)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OK: %d servers, %d paths, %d operations\n", len(compiled.Servers), len(compiled.Paths), ops)

	if cfg.Verbose {
		for _, p := range compiled.Paths {
			for _, row := range routeRowsForPath(p) {
				fmt.Fprintf(out, "  %-7s %s -> %s\n", row.Method, row.Path, row.handlerLabel())
			}
		}
	}

	return nil
}

// loadDocument wraps loader failures into friendly usage errors with the
// location and pointer when available.
func loadDocument(ctx context.Context, input string) (*openapi3.T, error) {
	d, err := load.Load(ctx, input)
	if err != nil {
		var de *load.SpecError
		if errors.As(err, &de) {
			msg := fmt.Sprintf("spec: %s", de.Message)
			if de.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, de.Location)
			}
			if de.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, de.JSONPointer)
			}
			return nil, newUsageError(msg)
		}
		return nil, err
	}
	return d, nil
}
