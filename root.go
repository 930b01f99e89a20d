package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beaubromley/vimeo-sermon-search/config"
	"github.com/beaubromley/vimeo-sermon-search/storage"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

// app carries what every command needs once the configuration is loaded.
type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	stderr     io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:           "sermonsearch",
		Short:         "Index and search archived sermon transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newIngestCommand(a))
	rootCmd.AddCommand(newSearchCommand(a))
	rootCmd.AddCommand(newStatusCommand(a))
	rootCmd.AddCommand(newReindexCommand(a))

	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.Log)
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.DriverSQLite:
		return storage.OpenSQLite(ctx, sc.SQLitePath, sc.PlayerHost)
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, sc.Postgres.Info(), sc.PlayerHost)
	case config.DriverMemory:
		return storage.NewMemory(sc.PlayerHost)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
