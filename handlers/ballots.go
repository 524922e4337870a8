// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/matchlock"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
	"github.com/google/uuid"
)

type BallotHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	locks *matchlock.Arena
}

func NewBallotHandler(db *sql.DB, cfg cliparse.Config, locks *matchlock.Arena) *BallotHandler {
	return &BallotHandler{db: db, cfg: cfg, locks: locks}
}

// adjudicatorRole returns the caller's adjudicator role on a match, or ""
func adjudicatorRole(q interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}, matchID, userID string) (string, error) {
	var role string
	err := q.QueryRow(`
		SELECT role FROM allocations
		WHERE match_id = $1 AND user_id = $2
		  AND role IN ($3, $4)
	`, matchID, userID, models.RoleVotingAdjudicator, models.RoleNonVotingAdjudicator).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// GetMyBallot handles GET /matches/{id}/my-ballot
// The draft ballot is created lazily on first read.
func (h *BallotHandler) GetMyBallot(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	matchID := r.PathValue("id")

	var exists bool
	if err := h.db.QueryRow(`SELECT COUNT(*) > 0 FROM matches WHERE id = $1`, matchID).Scan(&exists); err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !exists {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}

	role, err := adjudicatorRole(h.db, matchID, user.ID)
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if role == "" {
		middleware.ErrorResponse(w, http.StatusForbidden, "You are not an adjudicator on this match")
		return
	}

	unlock := h.locks.Lock(matchID)
	tx, err := h.db.Begin()
	if err != nil {
		unlock()
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if err := upsertBallotShell(tx, matchID, user.ID, role == models.RoleVotingAdjudicator); err != nil {
		tx.Rollback()
		unlock()
		slog.Error("failed to provision ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if err := tx.Commit(); err != nil {
		unlock()
		slog.Error("failed to commit ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	unlock()

	resp, err := h.buildBallotResponseFor(matchID, user.ID)
	if err != nil {
		slog.Error("failed to build ballot response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// SubmitBallot handles POST /matches/{id}/submit-ballot
// Voting adjudicators only. Resubmission replaces the previous contents
// wholesale; aggregates are recomputed in the same transaction.
func (h *BallotHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	matchID := r.PathValue("id")

	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	unlock := h.locks.Lock(matchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM matches WHERE id = $1`, matchID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+status)
		return
	}

	role, err := adjudicatorRole(tx, matchID, user.ID)
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if role != models.RoleVotingAdjudicator {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only voting adjudicators may submit a scored ballot")
		return
	}

	// Speaker allocations of the match, for score validation
	speakers := map[string]string{} // allocation ID → display name
	spkRows, err := tx.Query(`
		SELECT al.id, COALESCE(u.username, al.guest_name, '')
		FROM allocations al
		LEFT JOIN users u ON u.id = al.user_id
		WHERE al.match_id = $1 AND al.role = $2
	`, matchID, models.RoleSpeaker)
	if err != nil {
		slog.Error("failed to query speakers", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	for spkRows.Next() {
		var id, name string
		if err := spkRows.Scan(&id, &name); err != nil {
			spkRows.Close()
			slog.Error("failed to scan speaker", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		speakers[id] = name
	}
	spkRows.Close()

	seen := map[string]bool{}
	for _, s := range req.SpeakerScores {
		name, ok := speakers[s.AllocationID]
		if !ok {
			middleware.ErrorResponse(w, http.StatusBadRequest, "score references an allocation that is not a speaker on this match")
			return
		}
		if seen[s.AllocationID] {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("duplicate score for %s", name))
			return
		}
		seen[s.AllocationID] = true
		if s.Score < models.MinSpeakerScore || s.Score > models.MaxSpeakerScore || s.Score*2 != math.Trunc(s.Score*2) {
			middleware.ErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("score for %s must be between 50 and 100 in half-point steps", name))
			return
		}
	}

	// Rankings must be a permutation of 1..N over exactly the match's teams
	teams := map[string]bool{}
	teamRows, err := tx.Query(`SELECT id FROM match_teams WHERE match_id = $1`, matchID)
	if err != nil {
		slog.Error("failed to query teams", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	for teamRows.Next() {
		var id string
		if err := teamRows.Scan(&id); err != nil {
			teamRows.Close()
			slog.Error("failed to scan team", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		teams[id] = true
	}
	teamRows.Close()

	if len(req.TeamRankings) != len(teams) {
		middleware.ErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("rankings must cover all %d teams", len(teams)))
		return
	}
	rankSeen := make([]bool, len(teams))
	teamSeen := map[string]bool{}
	for _, tr := range req.TeamRankings {
		if !teams[tr.TeamID] {
			middleware.ErrorResponse(w, http.StatusBadRequest, "ranking references a team that is not on this match")
			return
		}
		if teamSeen[tr.TeamID] {
			middleware.ErrorResponse(w, http.StatusBadRequest, "duplicate ranking for a team")
			return
		}
		teamSeen[tr.TeamID] = true
		if tr.Rank < 1 || tr.Rank > len(teams) || rankSeen[tr.Rank-1] {
			middleware.ErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("ranks must be a permutation of 1 to %d", len(teams)))
			return
		}
		rankSeen[tr.Rank-1] = true
	}

	if err := upsertBallotShell(tx, matchID, user.ID, true); err != nil {
		slog.Error("failed to provision ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	var ballotID string
	if err := tx.QueryRow(`
		SELECT id FROM ballots WHERE match_id = $1 AND adjudicator_id = $2
	`, matchID, user.ID).Scan(&ballotID); err != nil {
		slog.Error("failed to query ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	// Replace previous contents
	if _, err := tx.Exec(`DELETE FROM speaker_scores WHERE ballot_id = $1`, ballotID); err != nil {
		slog.Error("failed to clear scores", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}
	if _, err := tx.Exec(`DELETE FROM team_rankings WHERE ballot_id = $1`, ballotID); err != nil {
		slog.Error("failed to clear rankings", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	for _, s := range req.SpeakerScores {
		if _, err := tx.Exec(`
			INSERT INTO speaker_scores (id, ballot_id, allocation_id, score, feedback)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), ballotID, s.AllocationID, s.Score, s.Feedback); err != nil {
			slog.Error("failed to insert score", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
			return
		}
	}
	for _, tr := range req.TeamRankings {
		if _, err := tx.Exec(`
			INSERT INTO team_rankings (id, ballot_id, team_id, rank, is_winner)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), ballotID, tr.TeamID, tr.Rank, tr.Rank == 1); err != nil {
			slog.Error("failed to insert ranking", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
			return
		}
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`
		UPDATE ballots SET notes = $1, is_submitted = TRUE, submitted_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, req.Notes, now, ballotID); err != nil {
		slog.Error("failed to mark ballot submitted", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	if err := recomputeAggregates(tx, matchID); err != nil {
		slog.Error("failed to recompute aggregates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	slog.Info("ballot submitted", "ballot_id", ballotID, "match_id", matchID, "adjudicator", user.ID)

	resp, err := h.buildBallotResponseFor(matchID, user.ID)
	if err != nil {
		slog.Error("failed to build ballot response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// SubmitFeedback handles POST /matches/{id}/submit-feedback
// Notes only; open to voting and non-voting adjudicators alike.
func (h *BallotHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	matchID := r.PathValue("id")

	var req models.SubmitFeedbackRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	unlock := h.locks.Lock(matchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM matches WHERE id = $1`, matchID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+status)
		return
	}

	role, err := adjudicatorRole(tx, matchID, user.ID)
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if role == "" {
		middleware.ErrorResponse(w, http.StatusForbidden, "You are not an adjudicator on this match")
		return
	}

	if err := upsertBallotShell(tx, matchID, user.ID, role == models.RoleVotingAdjudicator); err != nil {
		slog.Error("failed to provision ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit feedback")
		return
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`
		UPDATE ballots SET notes = $1, is_submitted = TRUE, submitted_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE match_id = $3 AND adjudicator_id = $4
	`, req.Notes, now, matchID, user.ID); err != nil {
		slog.Error("failed to update ballot notes", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit feedback")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit feedback", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit feedback")
		return
	}

	slog.Info("feedback submitted", "match_id", matchID, "adjudicator", user.ID)

	resp, err := h.buildBallotResponseFor(matchID, user.ID)
	if err != nil {
		slog.Error("failed to build ballot response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// ListBallots handles GET /admin/matches/{id}/ballots
func (h *BallotHandler) ListBallots(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	var exists bool
	if err := h.db.QueryRow(`SELECT COUNT(*) > 0 FROM matches WHERE id = $1`, matchID).Scan(&exists); err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !exists {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}

	rows, err := h.db.Query(`
		SELECT b.id FROM ballots b WHERE b.match_id = $1 ORDER BY b.created_at
	`, matchID)
	if err != nil {
		slog.Error("failed to query ballots", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("failed to scan ballot id", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		ids = append(ids, id)
	}
	rows.Close()

	ballots := []models.BallotResponse{}
	for _, id := range ids {
		resp, err := h.buildBallotResponse(id)
		if err != nil {
			slog.Error("failed to build ballot response", "error", err, "ballot_id", id)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		ballots = append(ballots, resp)
	}

	middleware.JSONResponse(w, http.StatusOK, ballots)
}

func (h *BallotHandler) buildBallotResponseFor(matchID, adjudicatorID string) (models.BallotResponse, error) {
	var ballotID string
	err := h.db.QueryRow(`
		SELECT id FROM ballots WHERE match_id = $1 AND adjudicator_id = $2
	`, matchID, adjudicatorID).Scan(&ballotID)
	if err != nil {
		return models.BallotResponse{}, err
	}
	return h.buildBallotResponse(ballotID)
}

// buildBallotResponse assembles a ballot with its scores and rankings.
// Scores joined to allocations that no longer exist are gone already (the
// foreign key cascades), so everything returned references live slots.
func (h *BallotHandler) buildBallotResponse(ballotID string) (models.BallotResponse, error) {
	var resp models.BallotResponse
	err := h.db.QueryRow(`
		SELECT b.id, b.match_id, b.adjudicator_id, u.username, b.is_voting, b.is_submitted,
		       b.submitted_at, b.notes
		FROM ballots b
		JOIN users u ON u.id = b.adjudicator_id
		WHERE b.id = $1
	`, ballotID).Scan(&resp.ID, &resp.MatchID, &resp.AdjudicatorID, &resp.AdjudicatorUsername,
		&resp.IsVoting, &resp.IsSubmitted, &resp.SubmittedAt, &resp.Notes)
	if err != nil {
		return models.BallotResponse{}, err
	}

	resp.SpeakerScores = []models.SpeakerScoreResponse{}
	scoreRows, err := h.db.Query(`
		SELECT ss.id, ss.allocation_id, COALESCE(u.username, al.guest_name, ''), ss.score, ss.feedback
		FROM speaker_scores ss
		JOIN allocations al ON al.id = ss.allocation_id
		LEFT JOIN users u ON u.id = al.user_id
		WHERE ss.ballot_id = $1
		ORDER BY ss.created_at
	`, ballotID)
	if err != nil {
		return models.BallotResponse{}, err
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var s models.SpeakerScoreResponse
		if err := scoreRows.Scan(&s.ID, &s.AllocationID, &s.SpeakerUsername, &s.Score, &s.Feedback); err != nil {
			return models.BallotResponse{}, err
		}
		resp.SpeakerScores = append(resp.SpeakerScores, s)
	}
	scoreRows.Close()

	resp.TeamRankings = []models.TeamRankingResponse{}
	rankRows, err := h.db.Query(`
		SELECT tr.id, tr.team_id, t.team_name, tr.rank, tr.is_winner
		FROM team_rankings tr
		JOIN match_teams t ON t.id = tr.team_id
		WHERE tr.ballot_id = $1
		ORDER BY tr.rank
	`, ballotID)
	if err != nil {
		return models.BallotResponse{}, err
	}
	defer rankRows.Close()
	for rankRows.Next() {
		var tr models.TeamRankingResponse
		if err := rankRows.Scan(&tr.ID, &tr.TeamID, &tr.TeamName, &tr.Rank, &tr.IsWinner); err != nil {
			return models.BallotResponse{}, err
		}
		resp.TeamRankings = append(resp.TeamRankings, tr)
	}

	return resp, nil
}
