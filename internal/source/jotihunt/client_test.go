package jotihunt

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotihunt/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, failures uint32) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL:            srv.URL + "/",
		Timeout:            5 * time.Second,
		BreakerFailures:    failures,
		BreakerOpenTimeout: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchArticles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/articles", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[
			{"id":1,"title":"Hint 1","type":"hint","publish_at":"2026-10-14T10:00:00+02:00","message":{"content":"<p>zoek</p>"}},
			{"id":2,"title":"Nieuws","type":"news","publish_at":"2026-10-14T11:00:00+02:00"}
		]}`)
	}, 5)

	articles, err := client.FetchArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, int64(1), articles[0].ID)
	assert.Equal(t, "hint", articles[0].Type)
	assert.JSONEq(t, `{"content":"<p>zoek</p>"}`, articles[0].Message)
	assert.Equal(t, "null", articles[1].Message)
}

func TestFetchAreas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/areas", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"name":"Alpha","status":"red","updated_at":"2026-10-14T10:00:00+02:00"}]}`)
	}, 5)

	areas, err := client.FetchAreas(context.Background())
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, "Alpha", areas[0].Name)
	assert.Equal(t, "red", areas[0].Status)
	assert.Equal(t, "2026-10-14T10:00:00+02:00", areas[0].UpdatedAt)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 5)

	_, err := client.FetchArticles(context.Background())
	assert.ErrorContains(t, err, "unexpected status: 502")

	var statusErr *domain.UpstreamStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestFetch_BadJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}, 5)

	_, err := client.FetchAreas(context.Background())
	assert.ErrorContains(t, err, "decode areas")
}

func TestFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	for range 2 {
		_, err := client.FetchArticles(context.Background())
		require.Error(t, err)
	}

	_, err := client.FetchArticles(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())

	// the area feed has its own breaker
	_, err = client.FetchAreas(context.Background())
	assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
}
