package api

import (
	"net/http"

	"jotihunt/internal/domain"
)

const areaHistoryLimit = 100

func (s *Server) handleAreaStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Areas.ListCurrent(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve area statuses")
		return
	}
	if statuses == nil {
		statuses = []domain.AreaStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleAreaHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Areas.History(r.Context(), chiParam(r, "areaName"), areaHistoryLimit)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve area status history")
		return
	}
	if history == nil {
		history = []domain.AreaStatusChange{}
	}
	writeJSON(w, http.StatusOK, history)
}
