package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jotihunt/internal/domain"
)

func (s *Server) handleDatabaseDump(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeError(w, http.StatusNotFound, "Database export not available")
		return
	}
	tables, err := s.deps.DB.Dump(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "", "Database export failed")
		return
	}
	s.renderPage(w, r, "database.html", map[string]any{"Tables": tables})
}

type endpointCheck struct {
	Status       int    `json:"status"`
	DataReceived bool   `json:"dataReceived"`
	RandomItem   any    `json:"randomItem,omitempty"`
	AreaName     string `json:"areaName,omitempty"`
	ItemID       int64  `json:"randomItemId,omitempty"`
	Content      any    `json:"content,omitempty"`
	Data         any    `json:"data,omitempty"`
	Message      string `json:"message,omitempty"`
}

type selfTestResults struct {
	DataEndpoints       map[string]*endpointCheck `json:"dataEndpoints"`
	ContentEndpoint     *endpointCheck            `json:"contentEndpoint"`
	StatsEndpoint       *endpointCheck            `json:"statsEndpoint"`
	UpdateEndpoint      *endpointCheck            `json:"updateEndpoint"`
	LocationEndpoints   map[string]*endpointCheck `json:"locationEndpoints"`
	AreaStatusEndpoints map[string]*endpointCheck `json:"areaStatusEndpoints"`
}

// selfTest calls the API over HTTP and remembers what it changed so the
// changes can be reverted.
type selfTest struct {
	s       *Server
	base    string
	results selfTestResults

	touchedItem *domain.Item
	locationID  string
}

func (s *Server) selfBaseURL(r *http.Request) string {
	if s.cfg.SelfURL != "" {
		return strings.TrimRight(s.cfg.SelfURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	t := &selfTest{
		s:    s,
		base: s.selfBaseURL(r),
		results: selfTestResults{
			DataEndpoints:       map[string]*endpointCheck{},
			LocationEndpoints:   map[string]*endpointCheck{"saveLocation": nil, "getLocations": nil},
			AreaStatusEndpoints: map[string]*endpointCheck{"getCurrentStatuses": nil, "getStatusHistory": nil},
		},
	}
	defer t.cleanup(context.WithoutCancel(r.Context()))

	if err := t.run(r.Context()); err != nil {
		s.logger.Error("self-test failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Test failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All endpoints tested",
		"results": t.results,
	})
}

func (t *selfTest) run(ctx context.Context) error {
	for _, category := range []string{"news", "hints", "assignments"} {
		var items []domain.Item
		status, err := t.call(ctx, http.MethodGet, "/api/data/"+category, nil, &items)
		if err != nil {
			return err
		}
		check := &endpointCheck{Status: status, DataReceived: len(items) > 0}
		if len(items) > 0 {
			check.RandomItem = items[rand.IntN(len(items))]
		}
		t.results.DataEndpoints[category] = check
	}

	var areas []domain.AreaStatus
	status, err := t.call(ctx, http.MethodGet, "/api/area-statuses", nil, &areas)
	if err != nil {
		return err
	}
	t.results.AreaStatusEndpoints["getCurrentStatuses"] = &endpointCheck{Status: status, DataReceived: len(areas) > 0}

	if len(areas) > 0 {
		area := areas[rand.IntN(len(areas))]
		var history []domain.AreaStatusChange
		status, err := t.call(ctx, http.MethodGet, "/api/area-status-history/"+url.PathEscape(area.Name), nil, &history)
		if err != nil {
			return err
		}
		check := &endpointCheck{Status: status, DataReceived: len(history) > 0, AreaName: area.Name}
		if len(history) > 0 {
			check.RandomItem = history[rand.IntN(len(history))]
		}
		t.results.AreaStatusEndpoints["getStatusHistory"] = check
	}

	all, err := t.s.deps.Items.List(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(all) > 0 {
		item := all[rand.IntN(len(all))]
		var content json.RawMessage
		status, err := t.call(ctx, http.MethodGet, fmt.Sprintf("/api/content/%d", item.ID), nil, &content)
		if err != nil {
			return err
		}
		t.results.ContentEndpoint = &endpointCheck{
			Status:       status,
			DataReceived: status == http.StatusOK && len(content) > 0 && string(content) != "null",
			ItemID:       item.ID,
			Content:      content,
		}
	}

	var stats domain.Stats
	status, err = t.call(ctx, http.MethodGet, "/api/stats", nil, &stats)
	if err != nil {
		return err
	}
	t.results.StatsEndpoint = &endpointCheck{Status: status, DataReceived: status == http.StatusOK, Data: stats}

	if len(all) > 0 {
		item := all[rand.IntN(len(all))]
		t.touchedItem = &item
		var resp struct {
			Item *domain.Item `json:"item"`
		}
		status, err := t.call(ctx, http.MethodPut, fmt.Sprintf("/api/update/%d", item.ID), map[string]any{
			"assignedTo": "Test User",
			"points":     5,
			"reviewed":   1,
			"completed":  0,
		}, &resp)
		if err != nil {
			return err
		}
		t.results.UpdateEndpoint = &endpointCheck{Status: status, DataReceived: status == http.StatusOK && resp.Item != nil, Data: resp.Item}
	}

	t.locationID = fmt.Sprintf("test-location-%d", time.Now().UnixMilli())
	var saved struct {
		Message string `json:"message"`
	}
	status, err = t.call(ctx, http.MethodPost, "/api/save-location", map[string]any{
		"id":          t.locationID,
		"name":        "Test Location",
		"description": "This is a test location",
		"latitude":    52.3676,
		"longitude":   4.9041,
	}, &saved)
	if err != nil {
		return err
	}
	t.results.LocationEndpoints["saveLocation"] = &endpointCheck{Status: status, DataReceived: status == http.StatusOK, Message: saved.Message}

	var locations []domain.Location
	status, err = t.call(ctx, http.MethodGet, "/api/get-locations", nil, &locations)
	if err != nil {
		return err
	}
	check := &endpointCheck{Status: status, DataReceived: len(locations) > 0}
	if len(locations) > 0 {
		check.RandomItem = locations[rand.IntN(len(locations))]
	}
	t.results.LocationEndpoints["getLocations"] = check

	return nil
}

// call performs one request and decodes a 2xx body into out. Non-2xx
// responses are errors.
func (t *selfTest) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.base+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// cleanup restores the updated item and removes the test location. It runs
// whether or not the test passed.
func (t *selfTest) cleanup(ctx context.Context) {
	if t.touchedItem != nil {
		if err := t.s.deps.Items.UpdateLocal(ctx, t.touchedItem.ID, t.touchedItem.Local()); err != nil {
			t.s.logger.Error("self-test cleanup: restore item", "item_id", t.touchedItem.ID, "error", err)
		}
	}
	if t.locationID != "" {
		if err := t.s.deps.Locations.Delete(ctx, t.locationID); err != nil {
			t.s.logger.Error("self-test cleanup: delete location", "location_id", t.locationID, "error", err)
		}
	}
	t.s.logger.Info("self-test cleanup completed")
}
