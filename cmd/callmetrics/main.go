package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/callmetrics/internal/agent"
	"github.com/ethpandaops/callmetrics/internal/pulled"
	"github.com/ethpandaops/callmetrics/internal/storage"
	"github.com/ethpandaops/callmetrics/internal/telecom"
	"github.com/ethpandaops/callmetrics/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Persistent telecom call telemetry aggregator",
		Long: `callmetrics aggregates call, audio route, API and error telemetry
into compact persisted statistics that are pulled at most once per
interval. Raw events are never kept.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	cmd.AddCommand(runCmd(), inspectCmd(), versionCmd())

	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the aggregation agent until interrupted",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [metric]",
		Short: "Print persisted snapshots without pulling them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  inspect,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

// setup loads the config and builds a logger honouring the flag override.
func setup() (*logrus.Logger, *agent.Config, error) {
	if cfgFile == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	return log, cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	log.WithField("version", version.Full()).Info("Starting callmetrics agent")

	if err := a.Start(ctx); err != nil {
		_ = a.Stop()

		return fmt.Errorf("starting agent: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down callmetrics agent")

	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping agent: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}

func inspect(cmd *cobra.Command, args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}

	ids := telecom.IDs()

	if len(args) == 1 {
		id, ok := telecom.IDByName(args[0])
		if !ok {
			return fmt.Errorf("unknown metric %q", args[0])
		}

		ids = []pulled.ID{id}
	}

	store, err := storage.New(log, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	defer store.Close()

	registry := telecom.NewRegistry(telecom.Options{
		Log:     log,
		Storage: store,
		Config:  cfg.Metrics,
	})
	defer registry.Destroy()

	registry.Open()

	stats := registry.Stats()

	for _, id := range ids {
		if err := printEvents(cmd.OutOrStdout(), id, stats[id].Peek()); err != nil {
			return err
		}
	}

	return nil
}

func printEvents(out io.Writer, id pulled.ID, events []pulled.Event) error {
	fmt.Fprintf(out, "%s (%d entries)\n", telecom.Name(id), len(events))

	if len(events) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(telecom.Columns(id), "\t"))

	for _, event := range events {
		cells := make([]string, len(event.Values))
		for i, v := range event.Values {
			cells[i] = fmt.Sprint(v)
		}

		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	fmt.Fprintln(w)

	return w.Flush()
}
