package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"jotihunt/internal/domain"
	"jotihunt/internal/validation"
)

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	t, ok := domain.CategoryType(chi.URLParam(r, "type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid data type")
		return
	}

	items, err := s.deps.Items.ListByType(r.Context(), t)
	if err != nil {
		s.writeStoreError(w, r, err, "", "Error retrieving data")
		return
	}
	if items == nil {
		items = []domain.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	item, err := s.deps.Items.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "Item not found", "Error retrieving item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	content, err := s.deps.Contents.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "Content not found", "Error retrieving content")
		return
	}
	writeJSON(w, http.StatusOK, content.Parsed())
}

// updateItemRequest carries the locally owned fields. Every field must be
// present; assignedTo may be null.
type updateItemRequest struct {
	AssignedTo nullableString `json:"assignedTo"`
	Points     *int           `json:"points" validate:"required,min=0"`
	Reviewed   *int           `json:"reviewed" validate:"required,oneof=0 1"`
	Completed  *int           `json:"completed" validate:"required,oneof=0 1"`
}

// nullableString tells an explicit null apart from a missing field.
type nullableString struct {
	Set   bool
	Value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

var updateFieldMessages = map[string]string{
	"assignedTo": "Invalid assignedTo value",
	"points":     "Invalid points value",
	"reviewed":   "Invalid reviewed value",
	"completed":  "Invalid completed value",
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if msg, ok := updateFieldMessages[typeErr.Field]; ok {
				writeError(w, http.StatusBadRequest, msg)
				return
			}
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.AssignedTo.Set {
		writeError(w, http.StatusBadRequest, updateFieldMessages["assignedTo"])
		return
	}
	if err := validation.Struct(&req); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			s.logger.Debug("update rejected", "item_id", id, "error", verr)
			writeError(w, http.StatusBadRequest, updateFieldMessages[verr.Fields[0].Field])
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	local := domain.LocalFields{
		AssignedTo: req.AssignedTo.Value,
		Points:     *req.Points,
		Reviewed:   *req.Reviewed == 1,
		Completed:  *req.Completed == 1,
	}
	if err := s.deps.Items.UpdateLocal(r.Context(), id, local); err != nil {
		s.writeStoreError(w, r, err, "Item not found", "Failed to update item")
		return
	}

	item, err := s.deps.Items.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "Item not found", "Failed to update item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Item updated successfully",
		"item":    item,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	byType := make(map[domain.ItemType][]domain.Item, len(domain.ItemTypes))
	for _, t := range domain.ItemTypes {
		items, err := s.deps.Items.ListByType(r.Context(), t)
		if err != nil {
			s.writeStoreError(w, r, err, "", "Error retrieving stats")
			return
		}
		byType[t] = items
	}
	writeJSON(w, http.StatusOK, domain.NewStats(byType))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
