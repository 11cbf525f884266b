package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"jotihunt/internal/backup"
	"jotihunt/internal/config"
	"jotihunt/internal/scheduler"
	"jotihunt/internal/storage/sqlstore"
	"jotihunt/internal/supervisor"
	"jotihunt/internal/worker"
)

const envFile = ".env"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig.String(), "pid", os.Getpid())
		cancel()
	}()

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("jotihunt failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "jotihunt",
		Usage: "JotiHunt backend: hunt feed sync and team API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config file",
				Value:       "config.yaml",
				Sources:     cli.EnvVars("JOTIHUNT_CONFIG"),
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			cmdServe(&configPath),
			cmdWorker(&configPath),
			cmdBackup(&configPath),
		},
	}
}

// loadConfig loads the config and installs the configured logger as the
// default.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func cmdServe(configPath *string) *cli.Command {
	var workers int

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the supervisor and its worker processes",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "number of worker processes (capped at the CPU count; 0 asks or uses all CPUs)",
				Destination: &workers,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			requested := cfg.Supervisor.Workers
			if c.IsSet("workers") {
				requested = workers
			}
			interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
			count, err := supervisor.ResolveWorkerCount(requested, runtime.NumCPU(), os.Stdin, os.Stdout, interactive)
			if err != nil {
				return err
			}
			if requested <= 0 && interactive {
				if err := supervisor.PersistWorkerCount(envFile, count); err != nil {
					logger.Warn("could not save worker count", "file", envFile, "error", err)
				} else {
					logger.Info("saved worker count", "file", envFile, "NUM_CORES", count)
				}
			}

			ln, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
			}
			defer ln.Close()
			lnFile, err := ln.(*net.TCPListener).File()
			if err != nil {
				return fmt.Errorf("share listener: %w", err)
			}
			defer lnFile.Close()

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}

			sup := supervisor.New(supervisor.Config{
				Workers:          count,
				Stagger:          cfg.Supervisor.Stagger,
				ReadyTimeout:     cfg.Supervisor.ReadyTimeout,
				ProvisionTimeout: cfg.Supervisor.ProvisionTimeout,
				ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
				FailureThreshold: *cfg.Supervisor.FailureThreshold,
				FailureDecay:     cfg.Supervisor.FailureDecay,
				FailureBackoff:   cfg.Supervisor.FailureBackoff,
			}, &supervisor.ExecLauncher{
				Path:     exe,
				Args:     []string{"--config", *configPath, "worker"},
				Listener: lnFile,
				Stdout:   os.Stdout,
				Stderr:   os.Stderr,
				Logger:   logger,
			}, logger)

			closeStore, err := scheduleBackups(ctx, cfg, sup, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			logger.Info("starting jotihunt",
				"addr", cfg.Server.Addr(),
				"workers", count,
				"poll_interval", cfg.Upstream.PollInterval,
			)
			return sup.Run(ctx)
		},
	}
}

// scheduleBackups adds the periodic backup job to the supervisor when backups
// are enabled. The returned func closes the store handle it opened.
func scheduleBackups(ctx context.Context, cfg *config.Config, sup *supervisor.Supervisor, logger *slog.Logger) (func(), error) {
	noop := func() {}
	if !cfg.Backup.Enabled {
		logger.Info("backups are disabled, set ENABLE_BACKUPS=true to enable")
		return noop, nil
	}
	if sqlstore.Dialect(cfg.Database.Driver) == sqlstore.DialectPostgres {
		logger.Warn("backups are not supported for the postgres store")
		return noop, nil
	}

	db, err := worker.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store for backups: %w", err)
	}

	manager := backup.NewManager(db, cfg.Backup.Location, logger)
	sched := scheduler.NewScheduler("backup", manager, cfg.Backup.Interval, 0, logger)
	sup.Go("backup", sched.Start)
	logger.Info("backups enabled", "location", cfg.Backup.Location, "interval", cfg.Backup.Interval)

	return func() { db.Close() }, nil
}

func cmdWorker(configPath *string) *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run one worker process",
		Hidden: true,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			err = worker.Run(ctx, cfg, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func cmdBackup(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write one store backup and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			db, err := worker.OpenStore(ctx, cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			path, err := backup.NewManager(db, cfg.Backup.Location, logger).Backup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, path)
			return nil
		},
	}
}
