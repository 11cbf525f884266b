package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"jotihunt/internal/domain"
	"jotihunt/internal/validation"
)

var errNotNumeric = errors.New("not a number")

// optionalFloat accepts a JSON number, a numeric string, "" or null. The
// last two leave it unset.
type optionalFloat struct {
	Value *float64
}

func (f *optionalFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			f.Value = nil
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return errNotNumeric
		}
		f.Value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return errNotNumeric
	}
	f.Value = &v
	return nil
}

type saveLocationRequest struct {
	ID          string        `json:"id" validate:"max=128"`
	Name        string        `json:"name" validate:"max=255"`
	Description string        `json:"description" validate:"max=4096"`
	Latitude    optionalFloat `json:"latitude"`
	Longitude   optionalFloat `json:"longitude"`
}

type coordinates struct {
	Latitude  *float64 `json:"latitude" validate:"omitnil,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"omitnil,min=-180,max=180"`
}

func (s *Server) handleSaveLocation(w http.ResponseWriter, r *http.Request) {
	var req saveLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid latitude or longitude")
		return
	}
	if err := validation.Struct(&req); err != nil {
		s.logger.Debug("location rejected", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid location")
		return
	}
	coords := coordinates{Latitude: req.Latitude.Value, Longitude: req.Longitude.Value}
	if err := validation.Struct(&coords); err != nil {
		s.logger.Debug("location rejected", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid latitude or longitude")
		return
	}

	loc := &domain.Location{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		Description: req.Description,
		Latitude:    coords.Latitude,
		Longitude:   coords.Longitude,
		UpdatedAt:   s.now().UTC(),
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}

	created, err := s.deps.Locations.Save(r.Context(), loc)
	if err != nil {
		s.writeStoreError(w, r, err, "Location not found", "Failed to save location")
		return
	}

	msg := "Location updated successfully"
	if created {
		msg = "Location created successfully"
	}
	s.logger.Info("location saved", "id", loc.ID, "created", created)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  msg,
		"location": loc,
	})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.deps.Locations.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "", "Failed to retrieve locations")
		return
	}
	if locations == nil {
		locations = []domain.Location{}
	}
	writeJSON(w, http.StatusOK, locations)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.deps.Locations.Get(r.Context(), chiParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "Location not found", "Failed to retrieve location")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
