package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nelssec/aso-compliance/pkg/compliance"
	"github.com/nelssec/aso-compliance/pkg/config"
	"github.com/nelssec/aso-compliance/pkg/daemon"
	"github.com/nelssec/aso-compliance/pkg/gate"
	"github.com/nelssec/aso-compliance/pkg/inspec"
	"github.com/nelssec/aso-compliance/pkg/logging"
	"github.com/nelssec/aso-compliance/pkg/metrics"
	"github.com/nelssec/aso-compliance/pkg/output"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// errGateDenied makes the process exit non-zero after the report is written.
var errGateDenied = errors.New("compliance gate denied the run")

type globalOptions struct {
	catalog      string
	catalogURL   string
	logLevel     string
	logFormat    string
	outputFormat string
	outputFile   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "aso-compliance",
		Short:         "Map InSpec control results onto compliance frameworks",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logging.Setup(logging.Options{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if err := config.ValidateOutputFormat(opts.outputFormat); err != nil {
				return fmt.Errorf("invalid --output %q: %w", opts.outputFormat, err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.catalog, "catalog", "", "Path to a mapping catalog (YAML or JSON)")
	flags.StringVar(&opts.catalogURL, "catalog-url", "", "URL of a remote mapping catalog")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text, json")
	flags.StringVar(&opts.outputFormat, "output", "console", "Output format: console, json, junit")
	flags.StringVar(&opts.outputFile, "output-file", "", "Output file path")

	rootCmd.AddCommand(newReportCmd(opts))
	rootCmd.AddCommand(newCoverageCmd(opts))
	rootCmd.AddCommand(newDriftCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newMappingsCmd(opts))
	rootCmd.AddCommand(newFrameworksCmd(opts))
	rootCmd.AddCommand(newControlsCmd(opts))

	return rootCmd
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Warn("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func loadMapper(ctx context.Context, opts *globalOptions) (*compliance.Mapper, error) {
	var loader *compliance.CatalogLoader

	switch {
	case opts.catalog != "" && opts.catalogURL != "":
		return nil, fmt.Errorf("--catalog and --catalog-url are mutually exclusive")
	case opts.catalog != "":
		loader = compliance.NewCatalogLoader(compliance.SourceLocal, compliance.WithLocalPath(opts.catalog))
	case opts.catalogURL != "":
		loader = compliance.NewCatalogLoader(compliance.SourceRemote, compliance.WithRemoteURL(opts.catalogURL))
	default:
		loader = compliance.NewCatalogLoader(compliance.SourceEmbedded)
	}

	m, err := loader.LoadMapper(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return m, nil
}

// resolveFrameworks checks every requested name against the catalog. An
// empty request selects every catalog framework by canonical ID.
func resolveFrameworks(m *compliance.Mapper, names []string) ([]string, map[string]string, error) {
	if len(names) == 0 {
		for _, fw := range m.Frameworks() {
			names = append(names, string(fw))
		}
	}

	titles := make(map[string]string, len(names))
	for _, name := range names {
		fw, ok := m.ResolveFramework(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown framework %q", name)
		}
		titles[name] = m.FrameworkName(fw)
	}
	return names, titles, nil
}

func writeDocument(cmd *cobra.Command, opts *globalOptions, doc *output.Document) error {
	var w io.Writer = cmd.OutOrStdout()
	if opts.outputFile != "" {
		// Colour never goes to files.
		w = io.Discard
	}

	formatter, err := output.New(opts.outputFormat, w)
	if err != nil {
		return err
	}

	data, err := formatter.Format(doc)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if opts.outputFile != "" {
		if err := os.WriteFile(opts.outputFile, data, 0600); err != nil {
			return err
		}
		slog.Info("report written", "path", opts.outputFile, "format", opts.outputFormat)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func writeMetrics(path string, doc *output.Document) error {
	if path == "" {
		return nil
	}

	recorder := metrics.NewRecorder()
	recorder.RecordCompliance(doc.Compliance)
	recorder.RecordCoverage(doc.Coverage)
	if err := recorder.WriteTextfile(path); err != nil {
		return err
	}
	slog.Debug("metrics written", "path", path)
	return nil
}

type reportOptions struct {
	results          string
	frameworks       []string
	gatePolicy       string
	minCompliance    float64
	minCoverage      float64
	blockingControls []string
	metricsFile      string
}

func (o reportOptions) gateEnabled() bool {
	return o.gatePolicy != "" || o.minCompliance > 0 || o.minCoverage > 0 || len(o.blockingControls) > 0
}

func newReportCmd(global *globalOptions) *cobra.Command {
	opts := reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate per-framework compliance reports from InSpec results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runReport(ctx, cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.results, "results", "", "InSpec JSON reporter output")
	cmd.Flags().StringSliceVar(&opts.frameworks, "frameworks", nil, "Frameworks to report on (default: all in the catalog)")
	cmd.Flags().StringVar(&opts.gatePolicy, "gate", "", "Rego policy defining data.aso.gate.deny (default: built-in policy)")
	cmd.Flags().Float64Var(&opts.minCompliance, "min-compliance", 0, "Deny when a framework's compliance percentage is below this")
	cmd.Flags().Float64Var(&opts.minCoverage, "min-coverage", 0, "Deny when a framework's coverage percentage is below this")
	cmd.Flags().StringSliceVar(&opts.blockingControls, "blocking-controls", nil, "Controls that must not fail")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	cmd.MarkFlagRequired("results")

	return cmd
}

func runReport(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts reportOptions) error {
	for _, id := range opts.blockingControls {
		if err := config.ValidateControlID(id); err != nil {
			return fmt.Errorf("invalid blocking control %q: %w", id, err)
		}
	}

	m, err := loadMapper(ctx, global)
	if err != nil {
		return err
	}

	names, titles, err := resolveFrameworks(m, opts.frameworks)
	if err != nil {
		return err
	}

	report, err := inspec.ParseFile(opts.results)
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}

	results := report.Results()
	slog.Info("evaluating results", "controls", len(results), "frameworks", strings.Join(names, ","))

	reports, err := m.GenerateComplianceReport(results, names)
	if err != nil {
		return err
	}

	doc := &output.Document{
		GeneratedAt: time.Now().UTC(),
		Frameworks:  names,
		Names:       titles,
		Compliance:  reports,
		Coverage:    m.ValidateFrameworkCoverage(report.ProfileControlIDs(), names),
	}

	if opts.gateEnabled() {
		g, err := newGate(ctx, opts.gatePolicy)
		if err != nil {
			return err
		}

		doc.Gate, err = g.Evaluate(ctx, gate.Input{
			Results:    results,
			Compliance: doc.Compliance,
			Coverage:   doc.Coverage,
			Thresholds: gate.Thresholds{
				MinCompliance:    opts.minCompliance,
				MinCoverage:      opts.minCoverage,
				BlockingControls: opts.blockingControls,
			},
		})
		if err != nil {
			return err
		}
	}

	if err := writeMetrics(opts.metricsFile, doc); err != nil {
		return err
	}
	if err := writeDocument(cmd, global, doc); err != nil {
		return err
	}

	if doc.Gate != nil && !doc.Gate.Allowed {
		return fmt.Errorf("%w: %d violation(s)", errGateDenied, len(doc.Gate.Violations))
	}
	return nil
}

func newGate(ctx context.Context, policy string) (*gate.Gate, error) {
	if policy == "" {
		return gate.NewDefault(ctx)
	}
	return gate.NewFromFile(ctx, policy)
}

func newCoverageCmd(global *globalOptions) *cobra.Command {
	var (
		results     string
		controls    []string
		frameworks  []string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Show how much of each framework a profile implements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ids, err := profileControls(results, controls)
			if err != nil {
				return err
			}

			m, err := loadMapper(ctx, global)
			if err != nil {
				return err
			}

			names, titles, err := resolveFrameworks(m, frameworks)
			if err != nil {
				return err
			}

			doc := &output.Document{
				GeneratedAt: time.Now().UTC(),
				Frameworks:  names,
				Names:       titles,
				Coverage:    m.ValidateFrameworkCoverage(ids, names),
			}

			if err := writeMetrics(metricsFile, doc); err != nil {
				return err
			}
			return writeDocument(cmd, global, doc)
		},
	}

	cmd.Flags().StringVar(&results, "results", "", "InSpec JSON reporter output to take control IDs from")
	cmd.Flags().StringSliceVar(&controls, "controls", nil, "Control IDs implemented by the profile")
	cmd.Flags().StringSliceVar(&frameworks, "frameworks", nil, "Frameworks to check (default: all in the catalog)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	cmd.MarkFlagsMutuallyExclusive("results", "controls")
	cmd.MarkFlagsOneRequired("results", "controls")

	return cmd
}

func profileControls(results string, controls []string) ([]string, error) {
	if results != "" {
		report, err := inspec.ParseFile(results)
		if err != nil {
			return nil, fmt.Errorf("failed to read results: %w", err)
		}
		return report.ProfileControlIDs(), nil
	}

	for _, id := range controls {
		if err := config.ValidateControlID(id); err != nil {
			return nil, fmt.Errorf("invalid control %q: %w", id, err)
		}
	}
	return controls, nil
}

func newDriftCmd(global *globalOptions) *cobra.Command {
	var results string

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare framework tags declared by controls with the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report, err := inspec.ParseFile(results)
			if err != nil {
				return fmt.Errorf("failed to read results: %w", err)
			}

			m, err := loadMapper(ctx, global)
			if err != nil {
				return err
			}

			doc := &output.Document{
				GeneratedAt: time.Now().UTC(),
				Frameworks:  []string{},
				Drift:       m.CheckDrift(report.Tags()),
			}
			slog.Info("drift checked", "controls", len(report.ProfileControlIDs()), "findings", len(doc.Drift))

			if len(doc.Drift) == 0 && strings.EqualFold(global.outputFormat, "console") {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No tag drift found")
				return err
			}
			return writeDocument(cmd, global, doc)
		},
	}

	cmd.Flags().StringVar(&results, "results", "", "InSpec JSON reporter output")
	cmd.MarkFlagRequired("results")

	return cmd
}

func newWatchCmd(global *globalOptions) *cobra.Command {
	var (
		results     string
		frameworks  []string
		metricsFile string
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate a results file periodically and refresh metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			m, err := loadMapper(ctx, global)
			if err != nil {
				return err
			}

			names, _, err := resolveFrameworks(m, frameworks)
			if err != nil {
				return err
			}

			d, err := daemon.New(daemon.Config{
				Interval:    interval,
				ResultsPath: results,
				MetricsFile: metricsFile,
				Frameworks:  names,
				Mapper:      m,
				ResultsCallback: func(c *daemon.Cycle) {
					for _, name := range names {
						report := c.Compliance[name]
						slog.Info("compliance evaluated",
							"framework", name,
							"percentage", report.CompliancePercentage,
							"failed", report.FailedControls)
					}
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}

			return d.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&results, "results", "", "InSpec JSON reporter output, re-read every cycle")
	cmd.Flags().StringSliceVar(&frameworks, "frameworks", nil, "Frameworks to evaluate (default: all in the catalog)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Prometheus textfile to refresh every cycle")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Evaluation interval")
	cmd.MarkFlagRequired("results")

	return cmd
}

func newMappingsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mappings <control-id>",
		Short: "Show the requirement codes a control maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controlID := args[0]
			if err := config.ValidateControlID(controlID); err != nil {
				return fmt.Errorf("invalid control %q: %w", controlID, err)
			}

			m, err := loadMapper(cmd.Context(), global)
			if err != nil {
				return err
			}

			mappings := m.MappingsForControl(controlID)
			out := cmd.OutOrStdout()

			if meta, ok := m.Control(controlID); ok {
				fmt.Fprintf(out, "%s: %s (impact %.1f)\n\n", controlID, meta.Title, meta.Impact)
			} else {
				fmt.Fprintf(out, "%s\n\n", controlID)
			}
			for _, fw := range m.Frameworks() {
				codes := mappings[fw]
				if len(codes) == 0 {
					fmt.Fprintf(out, "  %-6s -\n", fw)
					continue
				}
				fmt.Fprintf(out, "  %-6s %s\n", fw, strings.Join(codes, ", "))
			}
			return nil
		},
	}
}

func newFrameworksCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frameworks",
		Short: "List compliance frameworks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List frameworks in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMapper(cmd.Context(), global)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available frameworks:")
			fmt.Fprintln(out)
			for _, fw := range m.Frameworks() {
				fmt.Fprintf(out, "  %-6s %-45s %d controls\n", fw, m.FrameworkName(fw), len(m.ControlsForFramework(string(fw))))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Total: %d frameworks, %d controls\n", len(m.Frameworks()), len(m.ControlIDs()))
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	return cmd
}

func newControlsCmd(global *globalOptions) *cobra.Command {
	var (
		framework string
		results   string
	)

	cmd := &cobra.Command{
		Use:   "controls",
		Short: "List controls mapped into a framework",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List controls for a framework",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMapper(cmd.Context(), global)
			if err != nil {
				return err
			}

			fw, ok := m.ResolveFramework(framework)
			if !ok {
				return fmt.Errorf("unknown framework %q", framework)
			}

			// Titles from an executed profile fill in controls the catalog
			// does not describe.
			titles := make(map[string]string)
			if results != "" {
				report, err := inspec.ParseFile(results)
				if err != nil {
					return fmt.Errorf("failed to read results: %w", err)
				}
				for id, meta := range report.Metadata() {
					titles[id] = meta.Title
				}
			}

			out := cmd.OutOrStdout()
			controls := m.ControlsForFramework(framework)
			fmt.Fprintf(out, "Controls for framework: %s (%d total)\n\n", m.FrameworkName(fw), len(controls))
			for _, id := range controls {
				codes := m.MappingsForControl(id)[fw]
				fmt.Fprintf(out, "%s  [%s]\n", id, strings.Join(codes, ", "))

				title := titles[id]
				if meta, ok := m.Control(id); ok && meta.Title != "" {
					title = meta.Title
				}
				if title != "" {
					fmt.Fprintf(out, "    %s\n", title)
				}
			}
			return nil
		},
	}

	listCmd.Flags().StringVar(&framework, "framework", string(compliance.FrameworkCIS), "Framework to list controls for")
	listCmd.Flags().StringVar(&results, "results", "", "InSpec JSON reporter output used for titles the catalog lacks")

	cmd.AddCommand(listCmd)
	return cmd
}
