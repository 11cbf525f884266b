// Package jotihunt is the client for the upstream hunt API.
package jotihunt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"jotihunt/internal/domain"
	"jotihunt/internal/metrics"
)

const (
	articlesPath = "/articles"
	areasPath    = "/areas"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit; BreakerOpenTimeout is how long it stays open.
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// Client fetches the article and area feeds. Each endpoint sits behind its
// own circuit breaker; an open breaker fails the fetch without a request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	articles   *gobreaker.CircuitBreaker[[]byte]
	areas      *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With("component", "upstream"),
	}
	c.articles = c.newBreaker("upstream-articles", cfg)
	c.areas = c.newBreaker("upstream-areas", cfg)
	return c
}

func (c *Client) newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[[]byte] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// FetchArticles returns the current hunt feed.
func (c *Client) FetchArticles(ctx context.Context) ([]domain.FeedArticle, error) {
	body, err := c.articles.Execute(func() ([]byte, error) {
		return c.get(ctx, articlesPath)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}

	var resp envelope[Article]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}

	articles := make([]domain.FeedArticle, 0, len(resp.Data))
	for _, a := range resp.Data {
		articles = append(articles, a.toDomain())
	}
	return articles, nil
}

// FetchAreas returns the current status of every area.
func (c *Client) FetchAreas(ctx context.Context) ([]domain.FeedArea, error) {
	body, err := c.areas.Execute(func() ([]byte, error) {
		return c.get(ctx, areasPath)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch areas: %w", err)
	}

	var resp envelope[Area]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode areas: %w", err)
	}

	areas := make([]domain.FeedArea, 0, len(resp.Data))
	for _, a := range resp.Data {
		areas = append(areas, domain.FeedArea{Name: a.Name, Status: a.Status, UpdatedAt: a.UpdatedAt})
	}
	return areas, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "JotiHunt/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.UpstreamDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	c.logger.Debug("fetched upstream", "path", path, "bytes", len(body), "duration", time.Since(start))
	return body, nil
}

func (a Article) toDomain() domain.FeedArticle {
	message := string(a.Message)
	if message == "" {
		message = "null"
	}
	return domain.FeedArticle{
		ID:        a.ID,
		Type:      a.Type,
		Title:     a.Title,
		PublishAt: a.PublishAt,
		Message:   message,
	}
}
