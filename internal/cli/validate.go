package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/riskpulse/riskpulse/internal/collector"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/notifier"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateProbe bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration directory",
	Long: `Load and validate monitor.yaml, alerts.yaml and telemetry.yaml, build the
notification channels and print a summary. With --probe the telemetry target
is contacted with a gNMI Capabilities request.

Examples:
  riskpulse validate --config ./config
  riskpulse validate --probe`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.Context(), configDirFlag, validateProbe, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateProbe, "probe", false, "Contact the telemetry target")
}

func runValidate(ctx context.Context, dir string, probe bool, out io.Writer) error {
	cfg, err := config.LoadConfigDir(dir)
	if err != nil {
		return err
	}

	n, err := notifier.FromConfig(cfg.Alerts, zerolog.Nop())
	if err != nil {
		return err
	}
	defer n.Close()

	m := cfg.Monitor.Monitor
	fmt.Fprintf(out, "Configuration in %s is valid\n", dir)
	fmt.Fprintf(out, "  interval:        %s\n", m.Interval)
	fmt.Fprintf(out, "  max data points: %d\n", m.MaxDataPoints)
	fmt.Fprintf(out, "  alert retention: %d\n", m.AlertRetention)
	fmt.Fprintf(out, "  rules:           %d (%d enabled)\n", len(cfg.Monitor.Rules), countEnabled(cfg))
	fmt.Fprintf(out, "  channels:        %s\n", listOrNone(n.Channels()))
	fmt.Fprintf(out, "  api:             %s\n", cfg.Monitor.API.Listen)

	if !cfg.Telemetry.Enabled {
		fmt.Fprintln(out, "  telemetry:       disabled (random walk)")
		return nil
	}
	fmt.Fprintf(out, "  telemetry:       %s, %d paths\n", cfg.Telemetry.Target, len(cfg.Telemetry.Paths))

	if !probe {
		return nil
	}
	col, err := collector.NewCollector(cfg.Telemetry, collector.NewCache(), zerolog.Nop())
	if err != nil {
		return err
	}
	defer col.Close()

	models, gnmiVersion, err := col.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("telemetry probe failed: %w", err)
	}
	fmt.Fprintf(out, "  probe:           ok, gNMI %s, %d models\n", gnmiVersion, models)
	return nil
}

func countEnabled(cfg *config.Config) int {
	n := 0
	for _, r := range cfg.Monitor.Rules {
		if r.Enabled {
			n++
		}
	}
	return n
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
