package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"jotihunt/internal/domain"
	"jotihunt/internal/metrics"
	"jotihunt/internal/retry"
)

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type StoreSuite struct {
	suite.Suite
	ctx  context.Context
	path string
	db   *DB

	items     *ItemStore
	contents  *ContentStore
	plans     *PlanStore
	locations *LocationStore
	areas     *AreaStore
	latency   *LatencyStore
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "jotihunt.db")

	db, err := Open(s.ctx, Options{
		Path:        s.path,
		BusyTimeout: 5 * time.Second,
		WriteRetry:  retry.Policy{MaxAttempts: 25, Delay: 10 * time.Millisecond},
	}, discardLogger())
	s.Require().NoError(err)
	s.db = db

	s.items = NewItemStore(db)
	s.contents = NewContentStore(db)
	s.plans = NewPlanStore(db)
	s.locations = NewLocationStore(db)
	s.areas = NewAreaStore(db)
	s.latency = NewLatencyStore(db)
}

func (s *StoreSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) newItem(id int64, t domain.ItemType) *domain.Item {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Item{
		ID:          id,
		Title:       fmt.Sprintf("item %d", id),
		Type:        t,
		PublishAt:   now.Add(-time.Duration(id) * time.Minute),
		RetrievedAt: now,
	}
}

func (s *StoreSuite) TestOpen_SchemaIsIdempotent() {
	again, err := Open(s.ctx, Options{Path: s.path, BusyTimeout: time.Second}, discardLogger())
	s.Require().NoError(err)
	defer again.Close()

	var mode string
	s.Require().NoError(again.x.GetContext(s.ctx, &mode, "PRAGMA journal_mode"))
	s.Equal("wal", mode)
}

func (s *StoreSuite) TestItemStore_UpsertAndGet() {
	item := s.newItem(1, domain.ItemTypeNews)
	item.AssignedTo = ptr("Team Rood")
	item.Points = 10
	item.Completed = true

	s.Require().NoError(s.items.Upsert(s.ctx, item))

	got, err := s.items.Get(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(item.Title, got.Title)
	s.Equal(domain.ItemTypeNews, got.Type)
	s.True(item.PublishAt.Equal(got.PublishAt))
	s.Equal("Team Rood", *got.AssignedTo)
	s.Equal(10, got.Points)
	s.True(got.Completed)
	s.False(got.Reviewed)
}

func (s *StoreSuite) TestItemStore_GetMissing() {
	_, err := s.items.Get(s.ctx, 404)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestItemStore_UpsertReplacesRow() {
	item := s.newItem(1, domain.ItemTypeHint)
	s.Require().NoError(s.items.Upsert(s.ctx, item))

	item.Title = "renamed"
	item.Points = 3
	s.Require().NoError(s.items.Upsert(s.ctx, item))

	all, err := s.items.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("renamed", all[0].Title)
	s.Equal(3, all[0].Points)
}

func (s *StoreSuite) TestItemStore_ListByType() {
	s.Require().NoError(s.items.Upsert(s.ctx, s.newItem(1, domain.ItemTypeNews)))
	s.Require().NoError(s.items.Upsert(s.ctx, s.newItem(2, domain.ItemTypeHint)))
	s.Require().NoError(s.items.Upsert(s.ctx, s.newItem(3, domain.ItemTypeHint)))

	hints, err := s.items.ListByType(s.ctx, domain.ItemTypeHint)
	s.Require().NoError(err)
	s.Require().Len(hints, 2)
	// newest publish_at first
	s.Equal(int64(2), hints[0].ID)

	assignments, err := s.items.ListByType(s.ctx, domain.ItemTypeAssignment)
	s.Require().NoError(err)
	s.NotNil(assignments)
	s.Empty(assignments)
}

func (s *StoreSuite) TestItemStore_UpdateLocal() {
	item := s.newItem(7, domain.ItemTypeAssignment)
	s.Require().NoError(s.items.Upsert(s.ctx, item))

	local := domain.LocalFields{AssignedTo: ptr("Alice"), Points: 5, Reviewed: true}
	s.Require().NoError(s.items.UpdateLocal(s.ctx, 7, local))
	s.Require().NoError(s.items.UpdateLocal(s.ctx, 7, local))

	got, err := s.items.Get(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(local, got.Local())
	s.Equal(item.Title, got.Title)
}

func (s *StoreSuite) TestItemStore_UpdateLocalMissing() {
	err := s.items.UpdateLocal(s.ctx, 99, domain.LocalFields{Points: 1})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestContentStore() {
	_, err := s.contents.Get(s.ctx, 1)
	s.ErrorIs(err, domain.ErrNotFound)

	s.Require().NoError(s.contents.Upsert(s.ctx, &domain.Content{ID: 1, Message: `{"content":"v1"}`}))
	s.Require().NoError(s.contents.Upsert(s.ctx, &domain.Content{ID: 1, Message: `{"content":"v2"}`}))

	got, err := s.contents.Get(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("v2", got.Body())
}

func (s *StoreSuite) TestPlanStore_AppendsHistory() {
	first := &domain.Plan{ItemID: 1, ItemTitle: "a", Content: "plan 1", CreatedAt: time.Now().Add(-time.Minute)}
	second := &domain.Plan{ItemID: 1, ItemTitle: "a", Content: "plan 2", CreatedAt: time.Now()}
	s.Require().NoError(s.plans.Create(s.ctx, first))
	s.Require().NoError(s.plans.Create(s.ctx, second))
	s.NotZero(first.ID)
	s.NotEqual(first.ID, second.ID)

	plans, err := s.plans.ListByItem(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(plans, 2)
	s.Equal("plan 2", plans[0].Content)

	none, err := s.plans.ListByItem(s.ctx, 2)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *StoreSuite) TestLocationStore_PartialUpdate() {
	loc := &domain.Location{ID: "loc-1", Name: "Post", Description: "old", Latitude: ptr(52.0), Longitude: ptr(4.0), UpdatedAt: time.Now()}
	created, err := s.locations.Save(s.ctx, loc)
	s.Require().NoError(err)
	s.True(created)

	update := &domain.Location{ID: "loc-1", Name: "", Description: "new", UpdatedAt: time.Now()}
	created, err = s.locations.Save(s.ctx, update)
	s.Require().NoError(err)
	s.False(created)

	got, err := s.locations.Get(s.ctx, "loc-1")
	s.Require().NoError(err)
	s.Equal("Post", got.Name)
	s.Equal("new", got.Description)
	s.Equal(52.0, *got.Latitude)
	s.Equal(4.0, *got.Longitude)
	s.Equal(*got, *update)
}

func (s *StoreSuite) TestLocationStore_ListAndDelete() {
	for _, id := range []string{"a", "b"} {
		_, err := s.locations.Save(s.ctx, &domain.Location{ID: id, Name: id, UpdatedAt: time.Now()})
		s.Require().NoError(err)
	}

	locs, err := s.locations.List(s.ctx)
	s.Require().NoError(err)
	s.Len(locs, 2)

	s.Require().NoError(s.locations.Delete(s.ctx, "a"))
	_, err = s.locations.Get(s.ctx, "a")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestAreaStore() {
	_, err := s.areas.GetCurrent(s.ctx, "Alpha")
	s.ErrorIs(err, domain.ErrNotFound)

	now := time.Now().UTC()
	s.Require().NoError(s.areas.UpsertCurrent(s.ctx, &domain.AreaStatus{Name: "Alpha", Status: "green", LastUpdated: now}))
	s.Require().NoError(s.areas.UpsertCurrent(s.ctx, &domain.AreaStatus{Name: "Alpha", Status: "red", LastUpdated: now}))

	current, err := s.areas.ListCurrent(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(current, 1)
	s.Equal("red", current[0].Status)

	for i, status := range []string{"green", "orange", "red"} {
		change := &domain.AreaStatusChange{Area: "Alpha", Status: status, RecordedAt: now.Add(time.Duration(i) * time.Second)}
		s.Require().NoError(s.areas.AppendHistory(s.ctx, change))
		s.NotZero(change.ID)
	}

	history, err := s.areas.History(s.ctx, "Alpha", 2)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("red", history[0].Status)
	s.Equal("orange", history[1].Status)
}

func (s *StoreSuite) TestLatencyStore() {
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesUpstream, domain.ResponseTimeSample{
			RecordedAt:     base.Add(time.Duration(i) * time.Hour),
			ResponseTimeMs: float64(100 + i),
		}))
	}
	s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesAPI, domain.ResponseTimeSample{
		Endpoint:       "/api/stats",
		RecordedAt:     base.AddDate(0, 0, 1),
		ResponseTimeMs: 5,
	}))

	recent, err := s.latency.Recent(s.ctx, domain.SeriesUpstream, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(102.0, recent[0].ResponseTimeMs)

	window, err := s.latency.Between(s.ctx, domain.SeriesUpstream, base, base.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(window, 2)
	s.Equal(100.0, window[0].ResponseTimeMs)

	dates, err := s.latency.Dates(s.ctx, domain.SeriesAPI)
	s.Require().NoError(err)
	s.Equal([]string{"2026-10-15"}, dates)

	api, err := s.latency.Recent(s.ctx, domain.SeriesAPI, 10)
	s.Require().NoError(err)
	s.Require().Len(api, 1)
	s.Equal("/api/stats", api[0].Endpoint)

	s.Error(s.latency.Record(s.ctx, domain.Series("bogus"), domain.ResponseTimeSample{}))
}

func (s *StoreSuite) TestDump_ExcludesLatencyTables() {
	s.Require().NoError(s.items.Upsert(s.ctx, s.newItem(1, domain.ItemTypeNews)))
	s.Require().NoError(s.contents.Upsert(s.ctx, &domain.Content{ID: 1, Message: `{"content":"x"}`}))
	s.Require().NoError(s.latency.Record(s.ctx, domain.SeriesUpstream, domain.ResponseTimeSample{RecordedAt: time.Now(), ResponseTimeMs: 1}))

	dump, err := s.db.Dump(s.ctx)
	s.Require().NoError(err)
	s.Len(dump["items"], 1)
	s.Equal(`{"content":"x"}`, dump["content"][0]["message"])
	s.Contains(dump, "locations")
	s.NotContains(dump, "upstream_response_times")
	s.NotContains(dump, "api_response_times")
}

func (s *StoreSuite) TestSnapshotTo() {
	s.Require().NoError(s.items.Upsert(s.ctx, s.newItem(1, domain.ItemTypeNews)))
	dest := filepath.Join(s.T().TempDir(), "snapshot.db")

	s.Require().NoError(s.db.SnapshotTo(s.ctx, dest))
	// a second snapshot replaces the first
	s.Require().NoError(s.db.SnapshotTo(s.ctx, dest))

	copyDB, err := Open(s.ctx, Options{Path: dest, BusyTimeout: time.Second}, discardLogger())
	s.Require().NoError(err)
	defer copyDB.Close()

	got, err := NewItemStore(copyDB).Get(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("item 1", got.Title)
}

func (s *StoreSuite) TestTransaction_RollsBackOnError() {
	tm := NewTransactionManager(s.db)
	boom := errors.New("boom")

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := s.items.Upsert(ctx, s.newItem(1, domain.ItemTypeNews)); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.items.Get(s.ctx, 1)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestTransaction_NestedJoinsOuter() {
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		outer := GetTxFromContext(ctx)
		return tm.WithTransaction(ctx, func(inner context.Context) error {
			s.Same(outer, GetTxFromContext(inner))
			return s.items.Upsert(inner, s.newItem(1, domain.ItemTypeNews))
		})
	})
	s.Require().NoError(err)

	_, err = s.items.Get(s.ctx, 1)
	s.NoError(err)
}

// Two writers race for the same row while a third connection holds the
// write lock; both must succeed through the write gate.
func (s *StoreSuite) TestWriteGate_ConcurrentUpsertsUnderContention() {
	db, err := Open(s.ctx, Options{
		Path:        s.path,
		BusyTimeout: 0,
		WriteRetry:  retry.Policy{MaxAttempts: 25, Delay: 20 * time.Millisecond},
	}, discardLogger())
	s.Require().NoError(err)
	defer db.Close()
	items := NewItemStore(db)

	locker, err := sqlx.Open("sqlite", sqliteDSN(s.path, 0))
	s.Require().NoError(err)
	defer locker.Close()
	conn, err := locker.Conn(s.ctx)
	s.Require().NoError(err)
	defer conn.Close()
	_, err = conn.ExecContext(s.ctx, "BEGIN IMMEDIATE")
	s.Require().NoError(err)

	retriesBefore := testutil.ToFloat64(metrics.WriteGateRetries)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := s.newItem(1, domain.ItemTypeNews)
			item.Title = fmt.Sprintf("writer %d", i)
			item.Points = i + 1
			errs[i] = items.Upsert(s.ctx, item)
		}()
	}

	time.Sleep(150 * time.Millisecond)
	_, err = conn.ExecContext(s.ctx, "COMMIT")
	s.Require().NoError(err)
	wg.Wait()

	s.NoError(errs[0])
	s.NoError(errs[1])
	s.Greater(testutil.ToFloat64(metrics.WriteGateRetries), retriesBefore)

	got, err := items.Get(s.ctx, 1)
	s.Require().NoError(err)
	// one writer's record wins as a whole
	switch got.Title {
	case "writer 0":
		s.Equal(1, got.Points)
	case "writer 1":
		s.Equal(2, got.Points)
	default:
		s.Failf("unexpected title", "got %q", got.Title)
	}
}

func (s *StoreSuite) TestWriteGate_NonBusyErrorIsNotRetried() {
	retriesBefore := testutil.ToFloat64(metrics.WriteGateRetries)

	_, err := s.db.exec(s.ctx, `INSERT INTO no_such_table (id) VALUES (1)`)
	s.Error(err)
	s.False(IsBusy(err))
	s.Equal(retriesBefore, testutil.ToFloat64(metrics.WriteGateRetries))
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"locked message", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"wrapped locked message", fmt.Errorf("upsert item 1: %w", errors.New("database is locked")), true},
		{"table locked", errors.New("database table is locked"), true},
		{"postgres serialization failure", &pq.Error{Code: "40001"}, true},
		{"postgres deadlock", fmt.Errorf("commit: %w", &pq.Error{Code: "40P01"}), true},
		{"postgres unique violation", &pq.Error{Code: "23505"}, false},
		{"other", errors.New("no such table: items"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusy(tt.err))
		})
	}
}

func TestOpen_RejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Options{Dialect: "oracle"}, discardLogger())
	assert.Error(t, err)
}
