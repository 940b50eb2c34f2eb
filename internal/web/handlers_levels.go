package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/glucolog/glucolog/internal/core"
)

// handleListLevels returns one page of a user's measurements as a JSON
// array. A user with no data, or a page beyond the data, yields [].
func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := parseTimeParam(r, "stop")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := parseIntParam(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := parseIntParam(r, "page_size", core.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if pageSize > core.MaxPageSize {
		writeError(w, http.StatusBadRequest, "invalid page_size: must be at most 100")
		return
	}

	sort := core.DefaultSort
	if sortStr := r.URL.Query().Get("sort"); sortStr != "" {
		sort, err = core.ParseSort(sortStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	levels, err := s.service.ListLevels(r.Context(), core.LevelQuery{
		UserID:   userID,
		Start:    start,
		Stop:     stop,
		Page:     page,
		PageSize: pageSize,
		Sort:     sort,
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, levels)
}

// handleGetLevel returns a single measurement by id.
func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid level id "+strconv.Quote(idStr))
		return
	}

	lvl, err := s.service.GetLevel(r.Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "glucose level not found")
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, lvl)
}

// handleCreateLevel stores a single measurement supplied as query
// parameters and returns the stored record including its id.
func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userID := query.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	tsStr := query.Get("timestamp")
	if tsStr == "" {
		writeError(w, http.StatusBadRequest, "missing timestamp parameter")
		return
	}
	ts, err := core.ParseTimestamp(tsStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	valueStr := query.Get("glucose_value")
	if valueStr == "" {
		writeError(w, http.StatusBadRequest, "missing glucose_value parameter")
		return
	}
	value, err := core.ParseGlucose(valueStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lvl, err := s.service.CreateLevel(r.Context(), core.NewLevel{
		UserID:       userID,
		Timestamp:    ts,
		GlucoseValue: value,
	})
	if err != nil {
		if core.IsConflict(err) {
			s.respondError(w, r, err, http.StatusConflict)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, lvl)
}
