// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/formats"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
	"github.com/google/uuid"
)

type SeriesHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewSeriesHandler(db *sql.DB, cfg cliparse.Config) *SeriesHandler {
	return &SeriesHandler{db: db, cfg: cfg}
}

// parsePagination reads page/per_page query params (default 20, max 100)
func parsePagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 20

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	return page, perPage
}

func totalPages(total, perPage int) int {
	if total == 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// CreateSeries handles POST /admin/series
func (h *SeriesHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req models.CreateSeriesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input
	if req.EventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if len(req.Name) == 0 || len(req.Name) > 255 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
		return
	}
	if !formats.ValidFormat(req.TeamFormat) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "team_format must be two_team or four_team")
		return
	}

	// A round number may appear only once per event
	if req.RoundNumber != nil {
		var count int
		err := h.db.QueryRow(`
			SELECT COUNT(*) FROM match_series WHERE event_id = $1 AND round_number = $2
		`, req.EventID, *req.RoundNumber).Scan(&count)
		if err != nil {
			slog.Error("failed to check round number", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if count > 0 {
			middleware.ErrorResponse(w, http.StatusConflict, "A series with this round number already exists for the event")
			return
		}
	}

	seriesID := uuid.New().String()
	_, err := h.db.Exec(`
		INSERT INTO match_series (id, event_id, name, description, round_number, team_format, allow_reply_speeches, is_break_round, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, seriesID, req.EventID, req.Name, req.Description, req.RoundNumber, req.TeamFormat, req.AllowReplySpeeches, req.IsBreakRound, user.ID)
	if err != nil {
		slog.Error("failed to insert series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create series")
		return
	}

	slog.Info("series created", "series_id", seriesID, "event_id", req.EventID, "created_by", user.ID)

	series, err := h.fetchSeries(seriesID)
	if err != nil {
		slog.Error("failed to read back series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, series)
}

func (h *SeriesHandler) fetchSeries(id string) (models.SeriesResponse, error) {
	var resp models.SeriesResponse
	err := h.db.QueryRow(`
		SELECT s.id, s.event_id, s.name, s.description, s.round_number, s.team_format,
		       s.allow_reply_speeches, s.is_break_round, s.created_by, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM matches m WHERE m.series_id = s.id)
		FROM match_series s
		WHERE s.id = $1
	`, id).Scan(&resp.ID, &resp.EventID, &resp.Name, &resp.Description, &resp.RoundNumber,
		&resp.TeamFormat, &resp.AllowReplySpeeches, &resp.IsBreakRound, &resp.CreatedBy,
		&resp.CreatedAt, &resp.UpdatedAt, &resp.MatchCount)
	return resp, err
}

// GetSeries handles GET /series/{id}
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")

	series, err := h.fetchSeries(seriesID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Series not found")
		return
	}
	if err != nil {
		slog.Error("failed to query series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, series)
}

// ListSeries handles GET /series?event_id=
func (h *SeriesHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id query parameter is required")
		return
	}

	page, perPage := parsePagination(r)

	var total int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM match_series WHERE event_id = $1`, eventID).Scan(&total); err != nil {
		slog.Error("failed to count series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.Query(`
		SELECT s.id, s.event_id, s.name, s.description, s.round_number, s.team_format,
		       s.allow_reply_speeches, s.is_break_round, s.created_by, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM matches m WHERE m.series_id = s.id)
		FROM match_series s
		WHERE s.event_id = $1
		ORDER BY s.round_number, s.created_at
		LIMIT $2 OFFSET $3
	`, eventID, perPage, (page-1)*perPage)
	if err != nil {
		slog.Error("failed to query series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	list := []models.SeriesResponse{}
	for rows.Next() {
		var s models.SeriesResponse
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.Description, &s.RoundNumber,
			&s.TeamFormat, &s.AllowReplySpeeches, &s.IsBreakRound, &s.CreatedBy,
			&s.CreatedAt, &s.UpdatedAt, &s.MatchCount); err != nil {
			slog.Error("failed to scan series", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		list = append(list, s)
	}

	middleware.JSONResponse(w, http.StatusOK, models.SeriesListResponse{
		Series:     list,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	})
}

// UpdateSeries handles PUT /admin/series/{id}
// team_format is immutable after creation.
func (h *SeriesHandler) UpdateSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")

	var req models.UpdateSeriesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var current models.Series
	err := h.db.QueryRow(`
		SELECT id, name, description, allow_reply_speeches, is_break_round
		FROM match_series WHERE id = $1
	`, seriesID).Scan(&current.ID, &current.Name, &current.Description,
		&current.AllowReplySpeeches, &current.IsBreakRound)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Series not found")
		return
	}
	if err != nil {
		slog.Error("failed to query series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if req.Name != nil {
		if len(*req.Name) == 0 || len(*req.Name) > 255 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
			return
		}
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = req.Description
	}
	if req.AllowReplySpeeches != nil {
		current.AllowReplySpeeches = *req.AllowReplySpeeches
	}
	if req.IsBreakRound != nil {
		current.IsBreakRound = *req.IsBreakRound
	}

	_, err = h.db.Exec(`
		UPDATE match_series
		SET name = $1, description = $2, allow_reply_speeches = $3, is_break_round = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`, current.Name, current.Description, current.AllowReplySpeeches, current.IsBreakRound, seriesID)
	if err != nil {
		slog.Error("failed to update series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update series")
		return
	}

	slog.Info("series updated", "series_id", seriesID)

	series, err := h.fetchSeries(seriesID)
	if err != nil {
		slog.Error("failed to read back series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, series)
}

// DeleteSeries handles DELETE /admin/series/{id}
// Matches, teams, allocations, and ballots cascade.
func (h *SeriesHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")

	res, err := h.db.Exec(`DELETE FROM match_series WHERE id = $1`, seriesID)
	if err != nil {
		slog.Error("failed to delete series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete series")
		return
	}

	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("failed to read rows affected", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Series not found")
		return
	}

	slog.Info("series deleted", "series_id", seriesID)

	w.WriteHeader(http.StatusNoContent)
}
