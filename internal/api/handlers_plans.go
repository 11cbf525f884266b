package api

import (
	"errors"
	"net/http"

	"jotihunt/internal/domain"
	"jotihunt/internal/leaderboard"
)

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Planner == nil {
		writeError(w, http.StatusBadRequest, "API key not provided")
		return
	}
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	plan, err := s.deps.Planner.Generate(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, "API key not provided")
		return
	case errors.Is(err, domain.ErrNotFound):
		msg := "Content not found"
		if _, itemErr := s.deps.Items.Get(r.Context(), id); errors.Is(itemErr, domain.ErrNotFound) {
			msg = "Item not found"
		}
		writeError(w, http.StatusNotFound, msg)
		return
	case err != nil:
		s.writeStoreError(w, r, err, "", "Failed to generate plan")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Plan generated and saved successfully",
		"plan":    plan.Content,
		"id":      plan.ID,
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	plans, err := s.deps.Plans.ListByItem(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve plans")
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		writeError(w, http.StatusNotFound, "No leaderboard data available")
		return
	}

	entries, err := s.deps.Leaderboard.Fetch(r.Context())
	if err != nil {
		s.logger.Error("leaderboard scrape failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to scrape leaderboard")
		return
	}

	name := chiParam(r, "groupName")
	if name == "" {
		if len(entries) == 0 {
			writeError(w, http.StatusNotFound, "No leaderboard data available")
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	entry, ok := leaderboard.BestMatch(entries, name)
	if !ok {
		writeError(w, http.StatusNotFound, "No groups found in leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
