// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
)

type PoolHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewPoolHandler(db *sql.DB, cfg cliparse.Config) *PoolHandler {
	return &PoolHandler{db: db, cfg: cfg}
}

// GetPool handles GET /admin/series/{id}/pool
// Lists every user checked in to the series' event with an advisory
// is_allocated flag. Guests have no stable identity and never appear.
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")

	var eventID string
	err := h.db.QueryRow(`SELECT event_id FROM match_series WHERE id = $1`, seriesID).Scan(&eventID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Series not found")
		return
	}
	if err != nil {
		slog.Error("failed to query series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Current allocation per user across the series' non-cancelled matches
	allocations := map[string]models.CurrentAllocationInfo{}
	allocRows, err := h.db.Query(`
		SELECT al.user_id, al.match_id, m.room_name, al.role
		FROM allocations al
		JOIN matches m ON m.id = al.match_id
		WHERE m.series_id = $1 AND al.user_id IS NOT NULL AND m.status <> $2
	`, seriesID, models.StatusCancelled)
	if err != nil {
		slog.Error("failed to query allocations", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var userID string
		var info models.CurrentAllocationInfo
		if err := allocRows.Scan(&userID, &info.MatchID, &info.RoomName, &info.Role); err != nil {
			slog.Error("failed to scan allocation", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		allocations[userID] = info
	}
	allocRows.Close()

	rows, err := h.db.Query(`
		SELECT u.id, u.username, a.checked_in_at
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.event_id = $1 AND a.is_checked_in
		ORDER BY u.username
	`, eventID)
	if err != nil {
		slog.Error("failed to query attendance", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	users := []models.CheckedInUser{}
	allocated := 0
	for rows.Next() {
		var u models.CheckedInUser
		if err := rows.Scan(&u.UserID, &u.Username, &u.CheckedInAt); err != nil {
			slog.Error("failed to scan attendance", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if info, ok := allocations[u.UserID]; ok {
			u.IsAllocated = true
			current := info
			u.CurrentAllocation = &current
			allocated++
		}
		users = append(users, u)
	}

	middleware.JSONResponse(w, http.StatusOK, models.AllocationPoolResponse{
		EventID:        eventID,
		SeriesID:       seriesID,
		CheckedInUsers: users,
		TotalCheckedIn: len(users),
		TotalAllocated: allocated,
		TotalAvailable: len(users) - allocated,
	})
}
