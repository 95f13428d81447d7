package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mark3labs/oasgate/contract"
	"github.com/mark3labs/oasgate/security"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RoutesConfig captures the inputs to the routes command after merging
// defaults, config file values, and CLI overrides.
type RoutesConfig struct {
	Input      string
	Format     string
	ConfigPath string
	Verbose    bool
}

// routeRow is one dispatchable operation in emit order.
type routeRow struct {
	Method      string `json:"method" yaml:"method"`
	Path        string `json:"path" yaml:"path"`
	OperationID string `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Controller  string `json:"controller,omitempty" yaml:"controller,omitempty"`
	Security    string `json:"security,omitempty" yaml:"security,omitempty"`
}

func (r routeRow) handlerLabel() string {
	switch {
	case r.Controller != "" && r.OperationID != "":
		return r.Controller + "." + r.OperationID
	case r.OperationID != "":
		return r.OperationID
	default:
		return "(unbound)"
	}
}

var routesRunner = runRoutes

func newRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes a compiled document would dispatch",
		Long: "Compile an OpenAPI/Swagger document and list every dispatchable route " +
			"with its bound controller, operation id, and security requirements.",
		Example: strings.TrimSpace(`  oasgate routes --input api.yaml
  oasgate routes --input api.yaml --format json`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRoutesConfig(cmd)
			if err != nil {
				return err
			}
			return routesRunner(cmd.Context(), cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the OpenAPI/Swagger document")
	flags.String("format", "", "Output format (table|json|yaml); defaults to table")

	return cmd
}

func resolveRoutesConfig(cmd *cobra.Command) (*RoutesConfig, error) {
	cfg := &RoutesConfig{Format: "table"}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyRoutesConfigFromFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyRoutesFlagOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}

	cfg.Input = strings.TrimSpace(cfg.Input)
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Input == "" {
		return nil, newUsageError("routes: --input is required (set via flag or config file)")
	}
	switch cfg.Format {
	case "", "table":
		cfg.Format = "table"
	case "json", "yaml":
	default:
		return nil, newUsageError(fmt.Sprintf("routes: unsupported --format %q (allowed: table, json, yaml)", cfg.Format))
	}

	return cfg, nil
}

func applyRoutesFlagOverrides(flags *pflag.FlagSet, cfg *RoutesConfig) error {
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("format") {
		value, err := flags.GetString("format")
		if err != nil {
			return err
		}
		cfg.Format = strings.TrimSpace(value)
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

func applyRoutesConfigFromFile(cfg *RoutesConfig, path string) error {
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
		case "format":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Format = str
		case "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Verbose = val
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
	}

	return nil
}

func runRoutes(ctx context.Context, cmd *cobra.Command, cfg *RoutesConfig) error {
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

	var rows []routeRow
	for _, p := range compiled.Paths {
		rows = append(rows, routeRowsForPath(p)...)
	}

	out := cmd.OutOrStdout()
	switch cfg.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(rows)
	default:
		w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tHANDLER\tSECURITY")
		for _, r := range rows {
			sec := r.Security
			if sec == "" {
				sec = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Method, r.Path, r.handlerLabel(), sec)
		}
		return w.Flush()
	}
}

// routeRowsForPath emits one row per operation, methods sorted for stable
// output.
func routeRowsForPath(p *contract.Path) []routeRow {
	methods := make([]string, 0, len(p.Operations))
	for m := range p.Operations {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	rows := make([]routeRow, 0, len(methods))
	for _, m := range methods {
		op := p.Operations[m]
		rows = append(rows, routeRow{
			Method:      m,
			Path:        p.Template,
			OperationID: op.OperationID,
			Controller:  op.ControllerID,
			Security:    renderSecurity(op.Security),
		})
	}
	return rows
}

func renderSecurity(reqs []security.Requirement) string {
	if len(reqs) == 0 {
		return ""
	}
	alts := make([]string, 0, len(reqs))
	for _, req := range reqs {
		names := make([]string, 0, len(req))
		for _, ss := range req {
			names = append(names, ss.Name)
		}
		if len(names) == 1 {
			alts = append(alts, names[0])
		} else {
			alts = append(alts, "("+strings.Join(names, " + ")+")")
		}
	}
	return strings.Join(alts, " | ")
}
