// Package api serves the hunt REST API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jotihunt/internal/domain"
)

type ItemStore interface {
	Get(ctx context.Context, id int64) (*domain.Item, error)
	List(ctx context.Context) ([]domain.Item, error)
	ListByType(ctx context.Context, t domain.ItemType) ([]domain.Item, error)
	UpdateLocal(ctx context.Context, id int64, local domain.LocalFields) error
}

type ContentStore interface {
	Get(ctx context.Context, id int64) (*domain.Content, error)
}

type PlanStore interface {
	ListByItem(ctx context.Context, itemID int64) ([]domain.Plan, error)
}

type LocationStore interface {
	Get(ctx context.Context, id string) (*domain.Location, error)
	List(ctx context.Context) ([]domain.Location, error)
	Save(ctx context.Context, loc *domain.Location) (bool, error)
	Delete(ctx context.Context, id string) error
}

type AreaStore interface {
	ListCurrent(ctx context.Context) ([]domain.AreaStatus, error)
	History(ctx context.Context, area string, limit int) ([]domain.AreaStatusChange, error)
}

type LatencyStore interface {
	LatencyWriter
	Recent(ctx context.Context, series domain.Series, limit int) ([]domain.ResponseTimeSample, error)
	Between(ctx context.Context, series domain.Series, from, to time.Time) ([]domain.ResponseTimeSample, error)
	Dates(ctx context.Context, series domain.Series) ([]string, error)
}

type Planner interface {
	Generate(ctx context.Context, itemID int64) (*domain.Plan, error)
}

type Leaderboard interface {
	Fetch(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Database is the store handle itself, used by health and debug endpoints.
type Database interface {
	Ping(ctx context.Context) error
	Dump(ctx context.Context) (map[string][]map[string]any, error)
}

type Config struct {
	AllowedOrigins []string
	RequestDelay   time.Duration
	PlanRateLimit  int
	PlanRateWindow time.Duration
	// SelfURL is where the self-test sends its requests. Empty means the
	// scheme and host of the incoming request.
	SelfURL string
}

type Deps struct {
	Items       ItemStore
	Contents    ContentStore
	Plans       PlanStore
	Locations   LocationStore
	Areas       AreaStore
	Latency     LatencyStore
	Planner     Planner
	Leaderboard Leaderboard
	DB          Database
	Recorder    *LatencyRecorder
}

type Server struct {
	cfg    Config
	deps   Deps
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestMetrics)
	r.Use(OriginGuard(s.cfg.AllowedOrigins, "/metrics", "/health"))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return OriginAllowed(s.cfg.AllowedOrigins, origin)
		},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(requestDelay(s.cfg.RequestDelay))
	r.Use(recordLatency(s.deps.Recorder))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/database", s.handleDatabaseDump)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data/{type}", s.handleListItems)
		r.Get("/item/{id}", s.handleGetItem)
		r.Get("/content/{id}", s.handleGetContent)
		r.Put("/update/{id}", s.handleUpdateItem)
		r.Get("/stats", s.handleStats)

		r.With(s.planRateLimit()).Get("/generate-plan/{id}", s.handleGeneratePlan)
		r.Get("/plans/{id}", s.handleListPlans)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard/{groupName}", s.handleLeaderboard)

		r.Post("/save-location", s.handleSaveLocation)
		r.Get("/get-locations", s.handleListLocations)
		r.Get("/get-location/{id}", s.handleGetLocation)

		r.Get("/area-statuses", s.handleAreaStatuses)
		r.Get("/area-status-history/{areaName}", s.handleAreaHistory)

		r.Get("/response-times", s.handleResponseTimes)
		r.Get("/response-time-graph", s.handleResponseTimeGraph)

		r.Get("/test", s.handleSelfTest)
	})

	return r
}

func (s *Server) planRateLimit() func(http.Handler) http.Handler {
	if s.cfg.PlanRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := s.cfg.PlanRateWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(s.cfg.PlanRateLimit, window)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
