// Package leaderboard scrapes the public hunt score page.
package leaderboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"jotihunt/internal/domain"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

type Scraper struct {
	httpClient *http.Client
	url        string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

func NewScraper(cfg Config, logger *slog.Logger) *Scraper {
	s := &Scraper{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		logger:     logger.With("component", "leaderboard"),
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "leaderboard",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("leaderboard circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return s
}

// Fetch downloads and parses the score page.
func (s *Scraper) Fetch(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.download(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("leaderboard scraped", "entries", len(entries))
	return entries, nil
}

func (s *Scraper) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "JotiHunt/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
