package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"jotihunt/internal/domain"
)

const recentSamples = 100

var graphTimeframes = []int{1, 2, 4, 5, 7, 24}

func (s *Server) handleResponseTimes(w http.ResponseWriter, r *http.Request) {
	upstream, err := s.deps.Latency.Recent(r.Context(), domain.SeriesUpstream, recentSamples)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve response times")
		return
	}
	api, err := s.deps.Latency.Recent(r.Context(), domain.SeriesAPI, recentSamples)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve response times")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]domain.ResponseTimeSample{
		"jotihuntApiTimes": nonNil(upstream),
		"ourApiTimes":      nonNil(api),
	})
}

type timeframeOption struct {
	Hours    int
	Label    string
	Selected bool
}

type graphPage struct {
	SelectedDate string
	MinDate      string
	MaxDate      string
	Dates        []string
	Timeframes   []timeframeOption
	Upstream     []domain.ResponseTimeSample
	API          []domain.ResponseTimeSample
}

// graphWindow resolves the query into a [from, to) window. With a date and a
// timeframe of h hours the window is the last h hours of that UTC day;
// without them it is the last four hours.
func graphWindow(date, timeframe string, now time.Time) (time.Time, time.Time, error) {
	if date == "" || timeframe == "" {
		return now.Add(-4 * time.Hour), now, nil
	}

	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	hours, err := strconv.Atoi(timeframe)
	if err != nil || !slices.Contains(graphTimeframes, hours) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid timeframe %q", timeframe)
	}

	end := day.Add(24 * time.Hour)
	return end.Add(-time.Duration(hours) * time.Hour), end, nil
}

func (s *Server) handleResponseTimeGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, timeframe := q.Get("selectedDate"), q.Get("timeframe")

	from, to, err := graphWindow(date, timeframe, s.now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	upstreamDates, err := s.deps.Latency.Dates(ctx, domain.SeriesUpstream)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to generate response time graph")
		return
	}
	apiDates, err := s.deps.Latency.Dates(ctx, domain.SeriesAPI)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to generate response time graph")
		return
	}
	upstream, err := s.deps.Latency.Between(ctx, domain.SeriesUpstream, from, to)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to generate response time graph")
		return
	}
	api, err := s.deps.Latency.Between(ctx, domain.SeriesAPI, from, to)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to generate response time graph")
		return
	}

	dates := append(slices.Clone(upstreamDates), apiDates...)
	slices.Sort(dates)
	dates = slices.Compact(dates)

	page := graphPage{
		SelectedDate: date,
		Dates:        dates,
		Upstream:     nonNil(upstream),
		API:          nonNil(api),
	}
	if len(dates) > 0 {
		page.MinDate, page.MaxDate = dates[0], dates[len(dates)-1]
	}
	for _, h := range graphTimeframes {
		label := fmt.Sprintf("Last %d hours", h)
		if h == 24 {
			label = "Full 24 hours"
		}
		page.Timeframes = append(page.Timeframes, timeframeOption{
			Hours:    h,
			Label:    label,
			Selected: timeframe == strconv.Itoa(h),
		})
	}

	s.renderPage(w, r, "graph.html", page)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
