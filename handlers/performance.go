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

type PerformanceHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewPerformanceHandler(db *sql.DB, cfg cliparse.Config) *PerformanceHandler {
	return &PerformanceHandler{db: db, cfg: cfg}
}

// GetPerformance handles GET /users/{id}/performance?event_id=
// Only completed matches with released results count toward the record.
func (h *PerformanceHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	eventID := r.URL.Query().Get("event_id")

	var username string
	err := h.db.QueryRow(`SELECT username FROM users WHERE id = $1`, userID).Scan(&username)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		slog.Error("failed to query user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := models.PerformanceResponse{
		UserID:   userID,
		Username: username,
		Rankings: []models.RankCount{},
	}

	// Every released, completed round the user took part in, with their role
	// and (for speakers) their team's final rank.
	query := `
		SELECT al.role, t.final_rank
		FROM allocations al
		JOIN matches m ON m.id = al.match_id
		JOIN match_series s ON s.id = m.series_id
		LEFT JOIN match_teams t ON t.id = al.team_id
		WHERE al.user_id = $1 AND m.status = $2 AND m.rankings_released`
	args := []interface{}{userID, models.StatusCompleted}
	if eventID != "" {
		query += ` AND s.event_id = $3`
		args = append(args, eventID)
	}

	rows, err := h.db.Query(query, args...)
	if err != nil {
		slog.Error("failed to query performance rounds", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	rankCounts := map[int]int{}
	for rows.Next() {
		var role string
		var finalRank *int
		if err := rows.Scan(&role, &finalRank); err != nil {
			slog.Error("failed to scan performance row", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}

		resp.TotalRounds++
		switch role {
		case models.RoleSpeaker:
			resp.RoundsAsSpeaker++
			if finalRank != nil {
				rankCounts[*finalRank]++
				if *finalRank == 1 {
					resp.TotalWins++
				} else {
					resp.TotalLosses++
				}
			}
		case models.RoleVotingAdjudicator, models.RoleNonVotingAdjudicator:
			resp.RoundsAsAdjudicator++
		}
	}
	rows.Close()

	for rank := 1; rank <= 4; rank++ {
		if count, ok := rankCounts[rank]; ok {
			resp.Rankings = append(resp.Rankings, models.RankCount{Rank: rank, Count: count})
		}
	}

	if decided := resp.TotalWins + resp.TotalLosses; decided > 0 {
		rate := float64(resp.TotalWins) / float64(decided)
		resp.WinRate = &rate
	}

	// Average score across the user's speaker performances in completed
	// matches with released scores.
	avgQuery := `
		SELECT AVG(ss.score)
		FROM speaker_scores ss
		JOIN allocations al ON al.id = ss.allocation_id
		JOIN ballots b ON b.id = ss.ballot_id
		JOIN matches m ON m.id = al.match_id
		JOIN match_series s ON s.id = m.series_id
		WHERE al.user_id = $1 AND al.role = $2
		  AND b.is_submitted AND b.is_voting
		  AND m.status = $3 AND m.scores_released`
	avgArgs := []interface{}{userID, models.RoleSpeaker, models.StatusCompleted}
	if eventID != "" {
		avgQuery += ` AND s.event_id = $4`
		avgArgs = append(avgArgs, eventID)
	}

	var avg sql.NullFloat64
	if err := h.db.QueryRow(avgQuery, avgArgs...).Scan(&avg); err != nil {
		slog.Error("failed to query average score", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if avg.Valid {
		resp.AverageSpeakerScore = &avg.Float64
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}
