// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/formats"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
	"github.com/google/uuid"
)

type MatchHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewMatchHandler(db *sql.DB, cfg cliparse.Config) *MatchHandler {
	return &MatchHandler{db: db, cfg: cfg}
}

// CreateMatch handles POST /admin/matches
// The team skeleton for the series' format is stamped in the same transaction.
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMatchRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.SeriesID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "series_id is required")
		return
	}

	var format string
	err := h.db.QueryRow(`SELECT team_format FROM match_series WHERE id = $1`, req.SeriesID).Scan(&format)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Series not found")
		return
	}
	if err != nil {
		slog.Error("failed to query series", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	matchID := uuid.New().String()
	_, err = tx.Exec(`
		INSERT INTO matches (id, series_id, room_name, motion, info_slide, status, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, matchID, req.SeriesID, req.RoomName, req.Motion, req.InfoSlide, models.StatusDraft, req.ScheduledTime)
	if err != nil {
		slog.Error("failed to insert match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create match")
		return
	}

	for _, pos := range formats.Positions(format) {
		_, err = tx.Exec(`
			INSERT INTO match_teams (id, match_id, position)
			VALUES ($1, $2, $3)
		`, uuid.New().String(), matchID, pos)
		if err != nil {
			slog.Error("failed to insert team", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create match")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create match")
		return
	}

	slog.Info("match created", "match_id", matchID, "series_id", req.SeriesID)

	resp, err := buildMatchResponse(h.db, matchID, true)
	if err != nil {
		slog.Error("failed to read back match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// GetMatch handles GET /matches/{id}
// Scores and ranks are hidden from non-admins until released.
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	user, _ := middleware.UserFromContext(r.Context())

	resp, err := buildMatchResponse(h.db, matchID, user.IsAdmin)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to build match response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// ListMatches handles GET /matches?series_id=&event_id=&status=
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	seriesID := r.URL.Query().Get("series_id")
	eventID := r.URL.Query().Get("event_id")
	status := r.URL.Query().Get("status")

	if seriesID == "" && eventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "series_id or event_id query parameter is required")
		return
	}
	if status != "" && !models.ValidMatchStatus(status) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	page, perPage := parsePagination(r)

	conds := []string{}
	args := []interface{}{}
	if seriesID != "" {
		args = append(args, seriesID)
		conds = append(conds, fmt.Sprintf("m.series_id = $%d", len(args)))
	}
	if eventID != "" {
		args = append(args, eventID)
		conds = append(conds, fmt.Sprintf("s.event_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("m.status = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	countQuery := `
		SELECT COUNT(*) FROM matches m
		JOIN match_series s ON s.id = m.series_id
		WHERE ` + where
	if err := h.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		slog.Error("failed to count matches", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	listQuery := `
		SELECT m.id FROM matches m
		JOIN match_series s ON s.id = m.series_id
		WHERE ` + where + fmt.Sprintf(`
		ORDER BY m.created_at
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := h.db.Query(listQuery, args...)
	if err != nil {
		slog.Error("failed to query matches", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("failed to scan match id", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		ids = append(ids, id)
	}
	rows.Close()

	matches := []models.MatchResponse{}
	for _, id := range ids {
		resp, err := buildMatchResponse(h.db, id, user.IsAdmin)
		if err != nil {
			slog.Error("failed to build match response", "error", err, "match_id", id)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		matches = append(matches, resp)
	}

	middleware.JSONResponse(w, http.StatusOK, models.MatchListResponse{
		Matches:    matches,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	})
}

// UpdateMatch handles PUT /admin/matches/{id}
// Status changes must follow the lifecycle; invalid transitions are 409.
func (h *MatchHandler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	var req models.UpdateMatchRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var current models.Match
	err := h.db.QueryRow(`
		SELECT id, room_name, motion, info_slide, status, scheduled_time
		FROM matches WHERE id = $1
	`, matchID).Scan(&current.ID, &current.RoomName, &current.Motion, &current.InfoSlide,
		&current.Status, &current.ScheduledTime)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if req.Status != nil {
		if !models.ValidMatchStatus(*req.Status) {
			middleware.ErrorResponse(w, http.StatusBadRequest, "unknown status")
			return
		}
		if !models.ValidStatusTransition(current.Status, *req.Status) {
			middleware.ErrorResponse(w, http.StatusConflict,
				fmt.Sprintf("cannot transition from %s to %s", current.Status, *req.Status))
			return
		}
		current.Status = *req.Status
	}
	if req.RoomName != nil {
		current.RoomName = req.RoomName
	}
	if req.Motion != nil {
		current.Motion = req.Motion
	}
	if req.InfoSlide != nil {
		current.InfoSlide = req.InfoSlide
	}
	if req.ScheduledTime != nil {
		current.ScheduledTime = req.ScheduledTime
	}

	_, err = h.db.Exec(`
		UPDATE matches
		SET room_name = $1, motion = $2, info_slide = $3, status = $4, scheduled_time = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $6
	`, current.RoomName, current.Motion, current.InfoSlide, current.Status, current.ScheduledTime, matchID)
	if err != nil {
		slog.Error("failed to update match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update match")
		return
	}

	slog.Info("match updated", "match_id", matchID, "status", current.Status)

	resp, err := buildMatchResponse(h.db, matchID, true)
	if err != nil {
		slog.Error("failed to read back match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Release handles POST /admin/matches/{id}/release
// Releasing scores also releases rankings: scores imply standings.
func (h *MatchHandler) Release(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	var req models.ReleaseRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var scores, rankings bool
	err := h.db.QueryRow(`SELECT scores_released, rankings_released FROM matches WHERE id = $1`,
		matchID).Scan(&scores, &rankings)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if req.ScoresReleased != nil {
		scores = *req.ScoresReleased
	}
	if req.RankingsReleased != nil {
		rankings = *req.RankingsReleased
	}
	if scores {
		rankings = true
	}

	_, err = h.db.Exec(`
		UPDATE matches SET scores_released = $1, rankings_released = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, scores, rankings, matchID)
	if err != nil {
		slog.Error("failed to update release flags", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update match")
		return
	}

	slog.Info("release flags updated", "match_id", matchID, "scores", scores, "rankings", rankings)

	resp, err := buildMatchResponse(h.db, matchID, true)
	if err != nil {
		slog.Error("failed to read back match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// DeleteMatch handles DELETE /admin/matches/{id}
func (h *MatchHandler) DeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	res, err := h.db.Exec(`DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		slog.Error("failed to delete match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete match")
		return
	}

	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("failed to read rows affected", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}

	slog.Info("match deleted", "match_id", matchID)

	w.WriteHeader(http.StatusNoContent)
}

// UpdateTeam handles PUT /admin/teams/{id}
// Only team_name and institution are writable; ranks come from aggregation.
func (h *MatchHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("id")

	var req models.UpdateTeamRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var teamName, institution *string
	err := h.db.QueryRow(`SELECT team_name, institution FROM match_teams WHERE id = $1`,
		teamID).Scan(&teamName, &institution)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Team not found")
		return
	}
	if err != nil {
		slog.Error("failed to query team", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if req.TeamName != nil {
		teamName = req.TeamName
	}
	if req.Institution != nil {
		institution = req.Institution
	}

	_, err = h.db.Exec(`
		UPDATE match_teams SET team_name = $1, institution = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, teamName, institution, teamID)
	if err != nil {
		slog.Error("failed to update team", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update team")
		return
	}

	slog.Info("team updated", "team_id", teamID)

	var team models.Team
	err = h.db.QueryRow(`
		SELECT id, match_id, position, team_name, institution, final_rank, total_speaker_points, created_at, updated_at
		FROM match_teams WHERE id = $1
	`, teamID).Scan(&team.ID, &team.MatchID, &team.Position, &team.TeamName, &team.Institution,
		&team.FinalRank, &team.TotalSpeakerPoints, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		slog.Error("failed to read back team", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, team)
}

// buildMatchResponse assembles a match with its teams, speakers, resources,
// and adjudicators. Score and rank visibility follows the release flags
// unless the caller is an admin.
func buildMatchResponse(db *sql.DB, matchID string, isAdmin bool) (models.MatchResponse, error) {
	var resp models.MatchResponse
	var format string
	var allowReply bool

	err := db.QueryRow(`
		SELECT m.id, m.series_id, s.name, s.team_format, s.allow_reply_speeches,
		       m.room_name, m.motion, m.info_slide, m.status, m.scheduled_time,
		       m.scores_released, m.rankings_released, m.created_at, m.updated_at
		FROM matches m
		JOIN match_series s ON s.id = m.series_id
		WHERE m.id = $1
	`, matchID).Scan(&resp.ID, &resp.SeriesID, &resp.SeriesName, &format, &allowReply,
		&resp.RoomName, &resp.Motion, &resp.InfoSlide, &resp.Status, &resp.ScheduledTime,
		&resp.ScoresReleased, &resp.RankingsReleased, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return models.MatchResponse{}, err
	}

	showScores := isAdmin || resp.ScoresReleased
	showRanks := isAdmin || resp.RankingsReleased

	// Teams, ordered by the format's position order
	teamRows, err := db.Query(`
		SELECT id, position, team_name, institution, final_rank, total_speaker_points
		FROM match_teams WHERE match_id = $1
	`, matchID)
	if err != nil {
		return models.MatchResponse{}, err
	}
	defer teamRows.Close()

	teamsByPos := map[string]*models.TeamResponse{}
	teamsByID := map[string]*models.TeamResponse{}
	for teamRows.Next() {
		var t models.TeamResponse
		if err := teamRows.Scan(&t.ID, &t.Position, &t.TeamName, &t.Institution,
			&t.FinalRank, &t.TotalSpeakerPoints); err != nil {
			return models.MatchResponse{}, err
		}
		if !showRanks {
			t.FinalRank = nil
		}
		if !showScores {
			t.TotalSpeakerPoints = nil
		}
		t.Speakers = []models.SpeakerSlot{}
		t.Resources = []models.ResourceSlot{}
		teamsByPos[t.Position] = &t
		teamsByID[t.ID] = &t
	}
	teamRows.Close()

	// Average score per speaker allocation across submitted voting ballots
	averages := map[string]float64{}
	if showScores {
		avgRows, err := db.Query(`
			SELECT ss.allocation_id, AVG(ss.score)
			FROM speaker_scores ss
			JOIN ballots b ON b.id = ss.ballot_id
			WHERE b.match_id = $1 AND b.is_submitted AND b.is_voting
			GROUP BY ss.allocation_id
		`, matchID)
		if err != nil {
			return models.MatchResponse{}, err
		}
		defer avgRows.Close()
		for avgRows.Next() {
			var id string
			var avg float64
			if err := avgRows.Scan(&id, &avg); err != nil {
				return models.MatchResponse{}, err
			}
			averages[id] = avg
		}
		avgRows.Close()
	}

	// Ballot submission flags per adjudicator
	submitted := map[string]bool{}
	ballotRows, err := db.Query(`
		SELECT adjudicator_id, is_submitted FROM ballots WHERE match_id = $1
	`, matchID)
	if err != nil {
		return models.MatchResponse{}, err
	}
	defer ballotRows.Close()
	for ballotRows.Next() {
		var id string
		var sub bool
		if err := ballotRows.Scan(&id, &sub); err != nil {
			return models.MatchResponse{}, err
		}
		submitted[id] = sub
	}
	ballotRows.Close()

	// Allocations
	allocRows, err := db.Query(`
		SELECT al.id, al.user_id, al.guest_name, COALESCE(u.username, al.guest_name, ''),
		       al.role, al.team_id, al.speaker_role, al.is_chair
		FROM allocations al
		LEFT JOIN users u ON u.id = al.user_id
		WHERE al.match_id = $1
		ORDER BY al.created_at
	`, matchID)
	if err != nil {
		return models.MatchResponse{}, err
	}
	defer allocRows.Close()

	resp.Adjudicators = []models.AdjudicatorResponse{}
	for allocRows.Next() {
		var (
			id, role, username string
			identity           models.Identity
			teamID, spkRole    *string
			isChair            bool
		)
		if err := allocRows.Scan(&id, &identity.UserID, &identity.GuestName, &username,
			&role, &teamID, &spkRole, &isChair); err != nil {
			return models.MatchResponse{}, err
		}

		switch role {
		case models.RoleSpeaker:
			team, ok := teamsByID[derefOr(teamID)]
			if !ok {
				continue
			}
			slot := models.SpeakerSlot{
				AllocationID: id,
				Identity:     identity,
				Username:     username,
				SpeakerRole:  derefOr(spkRole),
			}
			if avg, ok := averages[id]; ok {
				a := avg
				slot.Score = &a
			}
			team.Speakers = append(team.Speakers, slot)
		case models.RoleResource:
			team, ok := teamsByID[derefOr(teamID)]
			if !ok {
				continue
			}
			team.Resources = append(team.Resources, models.ResourceSlot{
				AllocationID: id,
				Identity:     identity,
				Username:     username,
			})
		case models.RoleVotingAdjudicator, models.RoleNonVotingAdjudicator:
			adj := models.AdjudicatorResponse{
				AllocationID: id,
				Identity:     identity,
				Username:     username,
				IsVoting:     role == models.RoleVotingAdjudicator,
				IsChair:      isChair,
			}
			if identity.UserID != nil {
				adj.HasSubmitted = submitted[*identity.UserID]
			}
			resp.Adjudicators = append(resp.Adjudicators, adj)
		}
	}

	resp.Teams = []models.TeamResponse{}
	for _, pos := range formats.Positions(format) {
		if team, ok := teamsByPos[pos]; ok {
			sortSpeakers(team.Speakers, format, pos, allowReply)
			resp.Teams = append(resp.Teams, *team)
		}
	}

	return resp, nil
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sortSpeakers orders a team's speakers by their role's speaking order
func sortSpeakers(speakers []models.SpeakerSlot, format, position string, allowReply bool) {
	order := map[string]int{}
	for i, role := range formats.SpeakerRoles(format, position, allowReply) {
		order[role] = i
	}
	for i := 1; i < len(speakers); i++ {
		for j := i; j > 0 && order[speakers[j].SpeakerRole] < order[speakers[j-1].SpeakerRole]; j-- {
			speakers[j], speakers[j-1] = speakers[j-1], speakers[j]
		}
	}
}
