// Package worker is the runtime of one worker process: the HTTP API plus the
// feed and area sync jobs, sharing one store handle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"jotihunt/internal/api"
	"jotihunt/internal/config"
	"jotihunt/internal/leaderboard"
	"jotihunt/internal/llm"
	"jotihunt/internal/publisher"
	"jotihunt/internal/retry"
	"jotihunt/internal/scheduler"
	"jotihunt/internal/service"
	"jotihunt/internal/source/jotihunt"
	"jotihunt/internal/storage/sqlstore"
)

// OpenStore opens the store described by cfg.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlstore.DB, error) {
	return sqlstore.Open(ctx, sqlstore.Options{
		Dialect:     sqlstore.Dialect(cfg.Driver),
		Path:        cfg.Path,
		DSN:         cfg.DSN,
		BusyTimeout: cfg.BusyTimeout,
		WriteRetry: retry.Policy{
			MaxAttempts: cfg.WriteGate.MaxAttempts,
			Delay:       cfg.WriteGate.Delay,
		},
	}, logger)
}

// App holds everything one worker runs.
type App struct {
	cfg        *config.Config
	db         *sqlstore.DB
	publisher  *publisher.RabbitMQ
	server     *api.Server
	recorder   *api.LatencyRecorder
	schedulers []*scheduler.Scheduler
	logger     *slog.Logger
}

// New opens the store and wires the API and sync jobs. The caller must Close
// the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{cfg: cfg, db: db, logger: logger}

	items := sqlstore.NewItemStore(db)
	contents := sqlstore.NewContentStore(db)
	plans := sqlstore.NewPlanStore(db)
	locations := sqlstore.NewLocationStore(db)
	areas := sqlstore.NewAreaStore(db)
	latency := sqlstore.NewLatencyStore(db)
	txManager := sqlstore.NewTransactionManager(db)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled() {
		rabbit, err := publisher.NewRabbitMQ(publisher.Config{
			URL:            cfg.RabbitMQ.URL,
			Exchange:       cfg.RabbitMQ.Exchange,
			ItemRoutingKey: cfg.RabbitMQ.ItemRoutingKey,
			AreaRoutingKey: cfg.RabbitMQ.AreaRoutingKey,
			QueueName:      cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			// Events are optional; the worker still serves without them.
			logger.Warn("rabbitmq unavailable, change events disabled", "error", err)
		} else {
			a.publisher = rabbit
			pub = rabbit
		}
	}

	var generator service.TextGenerator
	if cfg.LLM.Enabled() {
		client, err := llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create text generation client: %w", err)
		}
		generator = client
	}

	upstream := jotihunt.New(jotihunt.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		Timeout:            cfg.Upstream.Timeout,
		BreakerFailures:    cfg.Upstream.BreakerFailures,
		BreakerOpenTimeout: cfg.Upstream.BreakerOpenTimeout,
	}, logger)

	feedSync := service.NewFeedSyncService(upstream, items, contents, latency, txManager, pub, logger)
	areaSync := service.NewAreaSyncService(upstream, areas, latency, txManager, pub, logger)
	a.schedulers = []*scheduler.Scheduler{
		scheduler.NewScheduler("feed", scheduler.SyncJob(feedSync), cfg.Upstream.PollInterval, cfg.Upstream.SyncTimeout, logger),
		scheduler.NewScheduler("areas", scheduler.SyncJob(areaSync), cfg.Upstream.PollInterval, cfg.Upstream.SyncTimeout, logger),
	}

	a.recorder = api.NewLatencyRecorder(latency, 0, logger)
	a.server = api.NewServer(api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestDelay:   cfg.Server.RequestDelay,
		PlanRateLimit:  cfg.Server.PlanRateLimit,
		PlanRateWindow: cfg.Server.PlanRateWindow,
		SelfURL:        cfg.Server.LoopbackURL(),
	}, api.Deps{
		Items:       items,
		Contents:    contents,
		Plans:       plans,
		Locations:   locations,
		Areas:       areas,
		Latency:     latency,
		Planner:     service.NewPlanService(items, contents, plans, generator, logger),
		Leaderboard: leaderboard.NewScraper(leaderboard.Config{URL: cfg.Leaderboard.URL, Timeout: cfg.Leaderboard.Timeout}, logger),
		DB:          db,
		Recorder:    a.recorder,
	}, logger)

	return a, nil
}

// Serve runs the HTTP server on ln together with the sync schedulers and the
// latency recorder until ctx is canceled or one of them fails. ready, when
// set, is called once the server is accepting.
func (a *App) Serve(ctx context.Context, ln net.Listener, ready func() error) error {
	srv := &http.Server{
		Handler:      a.server.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.recorder.Start(gctx)
	})
	for _, s := range a.schedulers {
		g.Go(func() error {
			if err := s.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	a.logger.Info("worker serving", "addr", ln.Addr().String())
	if ready != nil {
		g.Go(ready)
	}

	return g.Wait()
}

func (a *App) Close() error {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close rabbitmq", "error", err)
		}
	}
	return a.db.Close()
}
