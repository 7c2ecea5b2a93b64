package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timzifer/repolocator/config"
	"github.com/timzifer/repolocator/drivers/filesystem"
	"github.com/timzifer/repolocator/drivers/memory"
	"github.com/timzifer/repolocator/internal/logging"
	"github.com/timzifer/repolocator/internal/tracing"
	"github.com/timzifer/repolocator/locator"
	"github.com/timzifer/repolocator/repository"
	"github.com/timzifer/repolocator/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "repolocator: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "repolocator",
		Short:         "Resolve and connect to configured repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "locator.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Resolve and connect to the selected repository once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return executeCheck(cmd, cfgPath)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print the repositories of the catalogue",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return executeList(cmd, cfgPath)
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Keep the selected repository connected and follow configuration changes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				err := executeRun(cmd.Context(), cfgPath)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			},
		},
	)
	return root
}

func executeCheck(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	shutdown, err := tracing.Setup(cfg.Telemetry.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	logger, cleanup, err := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := newProvider(cfg, logger, telemetry.Noop())
	if err != nil {
		return err
	}
	defer provider.Close()

	handle := provider.Repository(cmd.Context())
	if handle == nil {
		return fmt.Errorf("repository %q unavailable: %w", cfg.Repository.Selector, provider.Err())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Repository %q connected (%s)\n", cfg.Repository.Selector, handle.Identity())
	return nil
}

func executeList(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	catalog := config.NewCatalog(cfg.Repository.Catalog)
	if err := catalog.ReadData(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Catalogue: %s\n", catalog.Path())
	return printRecords(cmd.OutOrStdout(), catalog, strings.TrimSpace(cfg.Repository.Selector))
}

// printRecords writes the records of source as a table, marking selected.
func printRecords(out io.Writer, source repository.Lister, selected string) error {
	records := source.Records()
	if len(records) == 0 {
		fmt.Fprintln(out, "No repositories configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tTYPE\tDESCRIPTION")
	for _, rec := range records {
		marker := ""
		if rec.Name == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, rec.Name, rec.Type, rec.Description)
	}
	return w.Flush()
}

// newRegistry returns the registry of the drivers compiled into the binary.
func newRegistry() (*repository.Registry, error) {
	reg := repository.NewRegistry()
	if err := memory.Register(reg); err != nil {
		return nil, err
	}
	if err := filesystem.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func newProvider(cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector) (*locator.Provider, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	return locator.NewResolving(
		config.NewCatalog(cfg.Repository.Catalog),
		reg,
		locator.WithLogger(logger),
		locator.WithTelemetry(collector),
		locator.WithSettings(settingsFrom(cfg)),
	)
}

func settingsFrom(cfg *config.Config) locator.Settings {
	username, password := cfg.Repository.Credentials()
	return locator.Settings{
		Selector: strings.TrimSpace(cfg.Repository.Selector),
		Username: username,
		Password: password,
	}
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, func(), error) {
	logger, cleanup, err := logging.SetupTo(cfg, out)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	log.Logger = logger
	return logger, cleanup, nil
}
