package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"jotihunt/internal/domain"
	"jotihunt/internal/retry"
	"jotihunt/internal/service"
	"jotihunt/internal/storage/sqlstore"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.text, g.err
}

type stubLeaderboard struct {
	entries []domain.LeaderboardEntry
	err     error
}

func (l *stubLeaderboard) Fetch(context.Context) ([]domain.LeaderboardEntry, error) {
	return l.entries, l.err
}

type APISuite struct {
	suite.Suite
	ctx context.Context
	db  *sqlstore.DB
	srv *httptest.Server

	items     *sqlstore.ItemStore
	contents  *sqlstore.ContentStore
	plans     *sqlstore.PlanStore
	locations *sqlstore.LocationStore
	areas     *sqlstore.AreaStore
	latency   *sqlstore.LatencyStore

	generator *stubGenerator
	board     *stubLeaderboard
	cfg       Config
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *APISuite) SetupTest() {
	s.ctx = context.Background()

	db, err := sqlstore.Open(s.ctx, sqlstore.Options{
		Path:        filepath.Join(s.T().TempDir(), "api.db"),
		BusyTimeout: 5 * time.Second,
		WriteRetry:  retry.Policy{MaxAttempts: 5, Delay: 10 * time.Millisecond},
	}, discardLogger())
	s.Require().NoError(err)
	s.db = db

	s.items = sqlstore.NewItemStore(db)
	s.contents = sqlstore.NewContentStore(db)
	s.plans = sqlstore.NewPlanStore(db)
	s.locations = sqlstore.NewLocationStore(db)
	s.areas = sqlstore.NewAreaStore(db)
	s.latency = sqlstore.NewLatencyStore(db)

	s.generator = &stubGenerator{text: "<p>Plan</p>"}
	s.board = &stubLeaderboard{}
	s.cfg = Config{AllowedOrigins: []string{"https://jotihunt.example.com"}}
	s.start()
}

func (s *APISuite) start() {
	if s.srv != nil {
		s.srv.Close()
	}
	planner := service.NewPlanService(s.items, s.contents, s.plans, s.generator, discardLogger())
	server := NewServer(s.cfg, Deps{
		Items:       s.items,
		Contents:    s.contents,
		Plans:       s.plans,
		Locations:   s.locations,
		Areas:       s.areas,
		Latency:     s.latency,
		Planner:     planner,
		Leaderboard: s.board,
		DB:          s.db,
	}, discardLogger())
	s.srv = httptest.NewServer(server.Router())
}

func (s *APISuite) TearDownTest() {
	if s.srv != nil {
		s.srv.Close()
		s.srv = nil
	}
	if s.db != nil {
		s.db.Close()
	}
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) seedItem(id int64, t domain.ItemType, message string) *domain.Item {
	now := time.Now().UTC().Truncate(time.Second)
	item := &domain.Item{ID: id, Title: "Item", Type: t, PublishAt: now, RetrievedAt: now}
	s.Require().NoError(s.items.Upsert(s.ctx, item))
	s.Require().NoError(s.contents.Upsert(s.ctx, &domain.Content{ID: id, Message: message}))
	return item
}

func (s *APISuite) do(method, path string, body any, headers ...string) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			s.Require().NoError(err)
			reader = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.srv.URL+path, reader)
	s.Require().NoError(err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func (s *APISuite) errorOf(data []byte) string {
	var e errorResponse
	s.Require().NoError(json.Unmarshal(data, &e))
	return e.Error
}

func (s *APISuite) TestOriginGuard_RejectsUnknownOrigin() {
	resp, data := s.do(http.MethodGet, "/api/stats", nil, "Origin", "https://evil.example.org")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("Authentication required or origin not allowed", s.errorOf(data))
}

func (s *APISuite) TestOriginGuard_AllowsListedOriginWithCORS() {
	resp, _ := s.do(http.MethodGet, "/api/stats", nil, "Origin", "https://app.jotihunt.example.com")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("https://app.jotihunt.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func (s *APISuite) TestOriginGuard_ExemptsHealthAndMetrics() {
	resp, _ := s.do(http.MethodGet, "/health", nil, "Origin", "https://evil.example.org")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, data := s.do(http.MethodGet, "/metrics", nil, "Origin", "https://evil.example.org")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(data), "jotihunt_api_requests_total")
}

func (s *APISuite) TestListItems() {
	s.seedItem(1, domain.ItemTypeHint, `{"content":"a"}`)
	s.seedItem(2, domain.ItemTypeNews, `{"content":"b"}`)

	resp, data := s.do(http.MethodGet, "/api/data/hints", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var items []domain.Item
	s.Require().NoError(json.Unmarshal(data, &items))
	s.Require().Len(items, 1)
	s.Equal(int64(1), items[0].ID)

	resp, data = s.do(http.MethodGet, "/api/data/assignments", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`[]`, string(data))
}

func (s *APISuite) TestListItems_InvalidType() {
	resp, data := s.do(http.MethodGet, "/api/data/hint", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("Invalid data type", s.errorOf(data))
}

func (s *APISuite) TestGetItem() {
	s.seedItem(5, domain.ItemTypeAssignment, `null`)

	resp, _ := s.do(http.MethodGet, "/api/item/5", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, data := s.do(http.MethodGet, "/api/item/6", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Item not found", s.errorOf(data))

	resp, _ = s.do(http.MethodGet, "/api/item/abc", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestGetContent() {
	s.seedItem(3, domain.ItemTypeHint, `{"content":"Zoek de vos","extra":1}`)

	resp, data := s.do(http.MethodGet, "/api/content/3", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"content":"Zoek de vos","extra":1}`, string(data))

	resp, data = s.do(http.MethodGet, "/api/content/4", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Content not found", s.errorOf(data))
}

func (s *APISuite) TestUpdateItem() {
	s.seedItem(10, domain.ItemTypeAssignment, `null`)

	body := map[string]any{"assignedTo": "Team A", "points": 7, "reviewed": 1, "completed": 0}
	resp, data := s.do(http.MethodPut, "/api/update/10", body)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Message string       `json:"message"`
		Item    *domain.Item `json:"item"`
	}
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Equal("Item updated successfully", out.Message)
	s.Require().NotNil(out.Item.AssignedTo)
	s.Equal("Team A", *out.Item.AssignedTo)
	s.Equal(7, out.Item.Points)
	s.True(out.Item.Reviewed)
	s.False(out.Item.Completed)

	// Applying the same update again leaves the same state.
	resp, _ = s.do(http.MethodPut, "/api/update/10", body)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	got, err := s.items.Get(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(*out.Item.AssignedTo, *got.AssignedTo)
	s.Equal(7, got.Points)

	resp, _ = s.do(http.MethodPut, "/api/update/10", map[string]any{"assignedTo": nil, "points": 0, "reviewed": 0, "completed": 1})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	got, err = s.items.Get(s.ctx, 10)
	s.Require().NoError(err)
	s.Nil(got.AssignedTo)
	s.True(got.Completed)
}

func (s *APISuite) TestUpdateItem_RejectsInvalidValues() {
	s.seedItem(11, domain.ItemTypeHint, `null`)
	before, err := s.items.Get(s.ctx, 11)
	s.Require().NoError(err)

	tests := []struct {
		name string
		body any
		msg  string
	}{
		{"negative points", map[string]any{"assignedTo": "x", "points": -1, "reviewed": 0, "completed": 0}, "Invalid points value"},
		{"reviewed out of range", map[string]any{"assignedTo": "x", "points": 1, "reviewed": 2, "completed": 0}, "Invalid reviewed value"},
		{"completed out of range", map[string]any{"assignedTo": "x", "points": 1, "reviewed": 0, "completed": -1}, "Invalid completed value"},
		{"missing points", map[string]any{"assignedTo": "x", "reviewed": 0, "completed": 0}, "Invalid points value"},
		{"fractional points", map[string]any{"assignedTo": "x", "points": 1.5, "reviewed": 0, "completed": 0}, "Invalid points value"},
		{"missing assignee", map[string]any{"points": 1, "reviewed": 0, "completed": 0}, "Invalid assignedTo value"},
		{"non-string assignee", map[string]any{"assignedTo": 3, "points": 1, "reviewed": 0, "completed": 0}, ""},
		{"not json", "{", "Invalid request body"},
	}
	for _, tt := range tests {
		resp, data := s.do(http.MethodPut, "/api/update/11", tt.body)
		s.Equal(http.StatusBadRequest, resp.StatusCode, tt.name)
		if tt.msg != "" {
			s.Equal(tt.msg, s.errorOf(data), tt.name)
		}
	}

	after, err := s.items.Get(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(before.Local(), after.Local())
}

func (s *APISuite) TestUpdateItem_UnknownID() {
	resp, data := s.do(http.MethodPut, "/api/update/999", map[string]any{"assignedTo": nil, "points": 0, "reviewed": 0, "completed": 0})
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Item not found", s.errorOf(data))
}

func (s *APISuite) TestStats() {
	s.seedItem(1, domain.ItemTypeHint, `null`)
	s.seedItem(2, domain.ItemTypeHint, `null`)
	s.seedItem(3, domain.ItemTypeAssignment, `null`)
	s.Require().NoError(s.items.UpdateLocal(s.ctx, 3, domain.LocalFields{Points: 4, Completed: true, Reviewed: true}))
	s.Require().NoError(s.items.UpdateLocal(s.ctx, 1, domain.LocalFields{Points: 2}))

	resp, data := s.do(http.MethodGet, "/api/stats", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{
		"totalItems": 3,
		"itemsByType": {"news": 0, "hint": 2, "assignment": 1},
		"completedItems": 1,
		"reviewedItems": 1,
		"totalPoints": 6
	}`, string(data))
}

func (s *APISuite) TestGeneratePlan() {
	s.seedItem(20, domain.ItemTypeAssignment, `{"content":"Bouw een vlot"}`)

	resp, data := s.do(http.MethodGet, "/api/generate-plan/20", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Message string `json:"message"`
		Plan    string `json:"plan"`
		ID      int64  `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Equal("Plan generated and saved successfully", out.Message)
	s.Equal("<p>Plan</p>", out.Plan)
	s.NotZero(out.ID)

	resp, data = s.do(http.MethodGet, "/api/plans/20", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var plans []domain.Plan
	s.Require().NoError(json.Unmarshal(data, &plans))
	s.Require().Len(plans, 1)
	s.Equal("<p>Plan</p>", plans[0].Content)
}

func (s *APISuite) TestGeneratePlan_UnknownItemStoresNothing() {
	resp, data := s.do(http.MethodGet, "/api/generate-plan/404", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Item not found", s.errorOf(data))
	s.Zero(s.generator.calls)

	plans, err := s.plans.ListByItem(s.ctx, 404)
	s.Require().NoError(err)
	s.Empty(plans)
}

func (s *APISuite) TestGeneratePlan_MissingContent() {
	now := time.Now().UTC()
	s.Require().NoError(s.items.Upsert(s.ctx, &domain.Item{ID: 21, Title: "x", Type: domain.ItemTypeHint, PublishAt: now, RetrievedAt: now}))

	resp, data := s.do(http.MethodGet, "/api/generate-plan/21", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Content not found", s.errorOf(data))
}

func (s *APISuite) TestGeneratePlan_NotConfigured() {
	planner := service.NewPlanService(s.items, s.contents, s.plans, nil, discardLogger())
	s.srv.Close()
	s.srv = httptest.NewServer(NewServer(s.cfg, Deps{Items: s.items, Planner: planner}, discardLogger()).Router())

	resp, data := s.do(http.MethodGet, "/api/generate-plan/1", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("API key not provided", s.errorOf(data))
}

func (s *APISuite) TestGeneratePlan_GeneratorFailure() {
	s.seedItem(22, domain.ItemTypeHint, `{"content":"x"}`)
	s.generator.err = errors.New("upstream 503")

	resp, data := s.do(http.MethodGet, "/api/generate-plan/22", nil)
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Equal("Failed to generate plan", s.errorOf(data))
}

func (s *APISuite) TestSaveLocation_CreateThenPartialUpdate() {
	resp, data := s.do(http.MethodPost, "/api/save-location", map[string]any{
		"id": "loc-1", "name": "A", "description": "d", "latitude": 52.1, "longitude": "5.2",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out struct {
		Message  string          `json:"message"`
		Location domain.Location `json:"location"`
	}
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Equal("Location created successfully", out.Message)
	s.Equal(5.2, *out.Location.Longitude)

	resp, data = s.do(http.MethodPost, "/api/save-location", map[string]any{
		"id": "loc-1", "name": "", "description": "e", "latitude": "", "longitude": nil,
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Equal("Location updated successfully", out.Message)

	resp, data = s.do(http.MethodGet, "/api/get-location/loc-1", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var loc domain.Location
	s.Require().NoError(json.Unmarshal(data, &loc))
	s.Equal("A", loc.Name)
	s.Equal("e", loc.Description)
	s.Equal(52.1, *loc.Latitude)
	s.Equal(5.2, *loc.Longitude)

	resp, data = s.do(http.MethodGet, "/api/get-locations", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var all []domain.Location
	s.Require().NoError(json.Unmarshal(data, &all))
	s.Len(all, 1)
}

func (s *APISuite) TestSaveLocation_RejectsPlaceholderCoordinates() {
	for _, body := range []map[string]any{
		{"id": "x", "name": "n", "latitude": "your-latitude", "longitude": "your-longitude"},
		{"id": "x", "name": "n", "latitude": 52.0, "longitude": "east"},
		{"id": "x", "name": "n", "latitude": 91, "longitude": 4},
		{"id": "x", "name": "n", "latitude": "NaN", "longitude": 4},
	} {
		resp, data := s.do(http.MethodPost, "/api/save-location", body)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.Equal("Invalid latitude or longitude", s.errorOf(data))
	}

	resp, _ := s.do(http.MethodGet, "/api/get-location/x", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APISuite) TestSaveLocation_GeneratesID() {
	resp, data := s.do(http.MethodPost, "/api/save-location", map[string]any{"name": "Vos", "latitude": 52, "longitude": 4})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out struct {
		Location domain.Location `json:"location"`
	}
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Len(out.Location.ID, 36)
}

func (s *APISuite) TestAreaEndpoints() {
	at := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.areas.UpsertCurrent(s.ctx, &domain.AreaStatus{Name: "Alpha", Status: "red", LastUpdated: at}))
	s.Require().NoError(s.areas.AppendHistory(s.ctx, &domain.AreaStatusChange{Area: "Alpha", Status: "green", RecordedAt: at.Add(-time.Hour)}))
	s.Require().NoError(s.areas.AppendHistory(s.ctx, &domain.AreaStatusChange{Area: "Alpha", Status: "red", RecordedAt: at}))

	resp, data := s.do(http.MethodGet, "/api/area-statuses", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var statuses []domain.AreaStatus
	s.Require().NoError(json.Unmarshal(data, &statuses))
	s.Require().Len(statuses, 1)
	s.Equal("red", statuses[0].Status)

	resp, data = s.do(http.MethodGet, "/api/area-status-history/Alpha", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var history []domain.AreaStatusChange
	s.Require().NoError(json.Unmarshal(data, &history))
	s.Require().Len(history, 2)
	s.Equal("red", history[0].Status)

	resp, data = s.do(http.MethodGet, "/api/area-status-history/Unknown", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`[]`, string(data))
}

func (s *APISuite) TestLeaderboard() {
	s.board.entries = []domain.LeaderboardEntry{
		{Position: 1, GroupName: "Scouting Mafeking", Points: 100, Area: "Alpha", AreaPosition: 1, IsAreaLeader: true},
		{Position: 2, GroupName: "De Paddenstoel", Points: 90, Area: "Alpha", AreaPosition: 2, IsAreaLeader: true},
	}

	resp, data := s.do(http.MethodGet, "/api/leaderboard", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var entries []domain.LeaderboardEntry
	s.Require().NoError(json.Unmarshal(data, &entries))
	s.Len(entries, 2)

	resp, data = s.do(http.MethodGet, "/api/leaderboard/paddenstoel", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var entry domain.LeaderboardEntry
	s.Require().NoError(json.Unmarshal(data, &entry))
	s.Equal("De Paddenstoel", entry.GroupName)
}

func (s *APISuite) TestLeaderboard_Empty() {
	resp, data := s.do(http.MethodGet, "/api/leaderboard", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("No leaderboard data available", s.errorOf(data))
}

func (s *APISuite) TestLeaderboard_ScrapeFailure() {
	s.board.err = errors.New("boom")
	resp, data := s.do(http.MethodGet, "/api/leaderboard", nil)
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Equal("Failed to scrape leaderboard", s.errorOf(data))
}

func (s *APISuite) TestResponseTimes() {
	now := time.Now().UTC()
	s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesUpstream, domain.ResponseTimeSample{Endpoint: "/articles", RecordedAt: now, ResponseTimeMs: 120}))
	s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesAPI, domain.ResponseTimeSample{Endpoint: "/api/stats", RecordedAt: now, ResponseTimeMs: 3}))

	resp, data := s.do(http.MethodGet, "/api/response-times", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out map[string][]domain.ResponseTimeSample
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Len(out["jotihuntApiTimes"], 1)
	s.Len(out["ourApiTimes"], 1)
	s.Equal(120.0, out["jotihuntApiTimes"][0].ResponseTimeMs)
}

func (s *APISuite) TestResponseTimeGraph() {
	at := time.Date(2026, 10, 11, 22, 30, 0, 0, time.UTC)
	s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesUpstream, domain.ResponseTimeSample{Endpoint: "/areas", RecordedAt: at, ResponseTimeMs: 88}))

	resp, data := s.do(http.MethodGet, "/api/response-time-graph?selectedDate=2026-10-11&timeframe=2", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/html")
	body := string(data)
	s.Contains(body, "API Response Times Graph")
	s.Contains(body, `<option value="2026-10-11">`)
	s.Contains(body, "88")

	resp, _ = s.do(http.MethodGet, "/api/response-time-graph", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/response-time-graph?selectedDate=2026-10-11&timeframe=3", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/response-time-graph?selectedDate=11-10-2026&timeframe=2", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestDatabaseDump() {
	s.seedItem(1, domain.ItemTypeNews, `{"content":"hallo"}`)

	resp, data := s.do(http.MethodGet, "/database", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	body := string(data)
	s.Contains(body, "jsoncrackEmbed")
	s.Contains(body, "items")
	s.NotContains(body, "api_response_times")
}

func (s *APISuite) TestSelfTest_RevertsMutations() {
	s.seedItem(30, domain.ItemTypeHint, `{"content":"a"}`)
	s.Require().NoError(s.items.UpdateLocal(s.ctx, 30, domain.LocalFields{AssignedTo: ptr("Bob"), Points: 3}))
	s.Require().NoError(s.areas.UpsertCurrent(s.ctx, &domain.AreaStatus{Name: "Bravo", Status: "orange", LastUpdated: time.Now()}))
	before, err := s.items.Get(s.ctx, 30)
	s.Require().NoError(err)

	resp, data := s.do(http.MethodGet, "/api/test", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(data))

	var out struct {
		Message string          `json:"message"`
		Results selfTestResults `json:"results"`
	}
	s.Require().NoError(json.Unmarshal(data, &out))
	s.Equal("All endpoints tested", out.Message)
	s.Require().NotNil(out.Results.UpdateEndpoint)
	s.Equal(http.StatusOK, out.Results.UpdateEndpoint.Status)
	s.True(out.Results.DataEndpoints["hints"].DataReceived)
	s.Equal("Location created successfully", out.Results.LocationEndpoints["saveLocation"].Message)

	after, err := s.items.Get(s.ctx, 30)
	s.Require().NoError(err)
	s.Equal(before.Local(), after.Local())

	locations, err := s.locations.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(locations)
}

func (s *APISuite) TestSelfTest_CleansUpOnFailure() {
	s.seedItem(31, domain.ItemTypeHint, `{"content":"a"}`)
	before, err := s.items.Get(s.ctx, 31)
	s.Require().NoError(err)

	// Point the self-test at a server that accepts the update but fails the
	// location save.
	target := s.srv
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/save-location" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		r2, _ := http.NewRequestWithContext(r.Context(), r.Method, target.URL+r.URL.RequestURI(), r.Body)
		r2.Header = r.Header
		resp, err := http.DefaultClient.Do(r2)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}))
	defer proxy.Close()

	s.cfg.SelfURL = proxy.URL
	s.start()
	target = s.srv

	resp, data := s.do(http.MethodGet, "/api/test", nil)
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Equal("Test failed", s.errorOf(data))

	after, err := s.items.Get(s.ctx, 31)
	s.Require().NoError(err)
	s.Equal(before.Local(), after.Local())
}

func (s *APISuite) TestRequestDelay() {
	s.cfg.RequestDelay = 50 * time.Millisecond
	s.start()

	start := time.Now()
	resp, _ := s.do(http.MethodGet, "/api/stats", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
}

func (s *APISuite) TestLatencyRecorder_PersistsAPISamples() {
	rec := NewLatencyRecorder(s.latency, 16, discardLogger())
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		_ = rec.Start(ctx)
		close(done)
	}()

	s.srv.Close()
	s.srv = httptest.NewServer(NewServer(s.cfg, Deps{
		Items:    s.items,
		Latency:  s.latency,
		Recorder: rec,
	}, discardLogger()).Router())

	resp, _ := s.do(http.MethodGet, "/api/stats", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/api/response-times", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	s.Eventually(func() bool {
		samples, err := s.latency.Recent(s.ctx, domain.SeriesAPI, 10)
		return err == nil && len(samples) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done

	samples, err := s.latency.Recent(s.ctx, domain.SeriesAPI, 10)
	s.Require().NoError(err)
	s.Require().Len(samples, 1)
	s.Equal("/api/stats", samples[0].Endpoint)
}

func ptr[T any](v T) *T { return &v }
