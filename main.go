package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/spf13/cobra"

	"github.com/SpongeData-cz/gopst/cmd"
	"github.com/SpongeData-cz/gopst/config"
	"github.com/SpongeData-cz/gopst/eml"
	"github.com/SpongeData-cz/gopst/export"
	"github.com/SpongeData-cz/gopst/progress"
	"github.com/SpongeData-cz/gopst/runner"
	"github.com/SpongeData-cz/gopst/stats"
	"github.com/SpongeData-cz/gopst/store"
	"github.com/SpongeData-cz/gopst/walk"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gopst",
		Short: "Export folders, messages, appointments and journals from PST files",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting gopst", "pst", cfg.PstPath, "output", cfg.OutputDir,
				"mode", cfg.Mode.String(), "dryRun", cfg.DryRun)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(cmd.NewStatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.PstPath)
	if err != nil {
		return fmt.Errorf("store.Open: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store failed", "err", err)
		}
	}()

	enum, err := walk.Build(st, logger)
	if err != nil {
		return fmt.Errorf("walk.Build: %w", err)
	}
	logger.Info("store walked", "store", st.Name(), "records", enum.Len())

	r, err := runner.New(cfg, st.Name(), logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	// the event channel has exactly one subscriber: the progress reporter
	// at info level, the plain stats reporter otherwise
	alreadyDone := r.Tracker().Snapshot().Processed
	bar := progress.New(enum.Len(), alreadyDone, cfg.LogLevel)
	if cfg.LogLevel == "info" {
		progress.NewProgressReporter(r, bar, logger)
	} else {
		stats.NewReporter(r, logger)
	}

	walk.NewProducer(enum, r, logger)

	exporterOpts := export.Options{
		OutputDir: cfg.OutputDir,
		Mode:      cfg.Mode,
		DryRun:    cfg.DryRun,
		EmailOptions: eml.Options{
			PreferUTF8:           cfg.PreferUTF8,
			SaveRTFBody:          cfg.SaveRTFBody,
			AcceptableExtensions: cfg.AcceptableExtensions,
			Logger:               logger,
		},
	}

	if _, err := export.NewExporter(exporterOpts, r, logger); err != nil {
		return fmt.Errorf("export.NewExporter: %w", err)
	}

	err = r.Start()
	bar.Stop()
	return err
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("gopst-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
