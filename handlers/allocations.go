// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/formats"
	"github.com/danielhkuo/tabrela/matchlock"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
	"github.com/google/uuid"
)

type AllocationHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	locks *matchlock.Arena
}

func NewAllocationHandler(db *sql.DB, cfg cliparse.Config, locks *matchlock.Arena) *AllocationHandler {
	return &AllocationHandler{db: db, cfg: cfg, locks: locks}
}

// matchContext is the match state allocation writes validate against
type matchContext struct {
	ID         string
	Status     string
	EventID    string
	Format     string
	AllowReply bool
}

func loadMatchContext(q interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}, matchID string) (matchContext, error) {
	var mc matchContext
	err := q.QueryRow(`
		SELECT m.id, m.status, s.event_id, s.team_format, s.allow_reply_speeches
		FROM matches m
		JOIN match_series s ON s.id = m.series_id
		WHERE m.id = $1
	`, matchID).Scan(&mc.ID, &mc.Status, &mc.EventID, &mc.Format, &mc.AllowReply)
	return mc, err
}

// CreateAllocation handles POST /admin/allocations
func (h *AllocationHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.UserFromContext(r.Context())

	var req models.CreateAllocationRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.MatchID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "match_id is required")
		return
	}
	if err := req.Identity.Validate(); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !models.ValidAllocationRole(req.Role) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "unknown role")
		return
	}

	unlock := h.locks.Lock(req.MatchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	mc, err := loadMatchContext(tx, req.MatchID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(mc.Status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+mc.Status)
		return
	}

	wasCheckedIn := false
	if req.UserID != nil {
		var exists bool
		err := tx.QueryRow(`SELECT COUNT(*) > 0 FROM users WHERE id = $1`, *req.UserID).Scan(&exists)
		if err != nil {
			slog.Error("failed to query user", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if !exists {
			middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
			return
		}

		err = tx.QueryRow(`
			SELECT COUNT(*) > 0 FROM attendance
			WHERE event_id = $1 AND user_id = $2 AND is_checked_in
		`, mc.EventID, *req.UserID).Scan(&wasCheckedIn)
		if err != nil {
			slog.Error("failed to query attendance", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
	}

	// One allocation per person per match
	var dup int
	if req.UserID != nil {
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM allocations WHERE match_id = $1 AND user_id = $2
		`, req.MatchID, *req.UserID).Scan(&dup)
	} else {
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM allocations WHERE match_id = $1 AND guest_name = $2
		`, req.MatchID, *req.GuestName).Scan(&dup)
	}
	if err != nil {
		slog.Error("failed to check duplicate allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if dup > 0 {
		middleware.ErrorResponse(w, http.StatusConflict, "Person is already allocated to this match")
		return
	}

	if msg, code := h.validateRoleFields(tx, mc, req.Role, req.TeamID, req.SpeakerRole, req.IsChair, ""); msg != "" {
		middleware.ErrorResponse(w, code, msg)
		return
	}

	// A match has at most one chair
	if req.IsChair {
		if _, err := tx.Exec(`
			UPDATE allocations SET is_chair = FALSE, updated_at = CURRENT_TIMESTAMP
			WHERE match_id = $1 AND is_chair
		`, req.MatchID); err != nil {
			slog.Error("failed to demote chair", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
	}

	allocationID := uuid.New().String()
	_, err = tx.Exec(`
		INSERT INTO allocations (id, match_id, user_id, guest_name, role, team_id, speaker_role, is_chair, was_checked_in, allocated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, allocationID, req.MatchID, req.UserID, req.GuestName, req.Role, req.TeamID, req.SpeakerRole,
		req.IsChair, wasCheckedIn, admin.ID)
	if err != nil {
		slog.Error("failed to insert allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create allocation")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO allocation_history (id, allocation_id, match_id, user_id, guest_name, action, new_role, new_team_id, new_speaker_role, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.New().String(), allocationID, req.MatchID, req.UserID, req.GuestName,
		models.ActionCreated, req.Role, req.TeamID, req.SpeakerRole, admin.ID)
	if err != nil {
		slog.Error("failed to insert history", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create allocation")
		return
	}

	// Registered adjudicators get a draft ballot up front
	if models.IsAdjudicatorRole(req.Role) && req.UserID != nil {
		if err := upsertBallotShell(tx, req.MatchID, *req.UserID, req.Role == models.RoleVotingAdjudicator); err != nil {
			slog.Error("failed to provision ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create allocation")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create allocation")
		return
	}

	slog.Info("allocation created", "allocation_id", allocationID, "match_id", req.MatchID, "role", req.Role)

	alloc, err := h.fetchAllocation(allocationID)
	if err != nil {
		slog.Error("failed to read back allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, alloc)
}

// validateRoleFields checks role/team/speaker_role/is_chair consistency
// against current match state. excludeID omits an allocation from the
// slot-occupancy check (the one being updated). Returns an error message and
// status code, or "" when valid.
func (h *AllocationHandler) validateRoleFields(tx *sql.Tx, mc matchContext, role string, teamID, speakerRole *string, isChair bool, excludeID string) (string, int) {
	switch role {
	case models.RoleSpeaker, models.RoleResource:
		if isChair {
			return "is_chair is only valid for adjudicator roles", http.StatusBadRequest
		}
		if teamID == nil {
			return "team_id is required for " + role + " allocations", http.StatusBadRequest
		}

		var position, teamMatchID string
		err := tx.QueryRow(`SELECT position, match_id FROM match_teams WHERE id = $1`, *teamID).Scan(&position, &teamMatchID)
		if err == sql.ErrNoRows {
			return "Team not found", http.StatusNotFound
		}
		if err != nil {
			slog.Error("failed to query team", "error", err)
			return "Database error", http.StatusInternalServerError
		}
		if teamMatchID != mc.ID {
			return "team does not belong to this match", http.StatusBadRequest
		}

		if role == models.RoleResource {
			if speakerRole != nil {
				return "speaker_role is only valid for speaker allocations", http.StatusBadRequest
			}
			return "", 0
		}

		if speakerRole == nil {
			return "speaker_role is required for speaker allocations", http.StatusBadRequest
		}
		if !formats.ValidRole(mc.Format, position, *speakerRole, mc.AllowReply) {
			return "speaker_role " + *speakerRole + " is not valid for the " + position + " team", http.StatusBadRequest
		}

		var occupied int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM allocations
			WHERE team_id = $1 AND speaker_role = $2 AND id <> $3
		`, *teamID, *speakerRole, excludeID).Scan(&occupied)
		if err != nil {
			slog.Error("failed to check speaker slot", "error", err)
			return "Database error", http.StatusInternalServerError
		}
		if occupied > 0 {
			return "the " + *speakerRole + " slot is already filled", http.StatusConflict
		}

	case models.RoleVotingAdjudicator, models.RoleNonVotingAdjudicator:
		if teamID != nil {
			return "team_id is not valid for adjudicator roles", http.StatusBadRequest
		}
		if speakerRole != nil {
			return "speaker_role is not valid for adjudicator roles", http.StatusBadRequest
		}
	}

	return "", 0
}

// upsertBallotShell creates or refreshes the draft ballot for a registered
// adjudicator. A previously provisioned ballot keeps its contents; only the
// voting flag follows the role.
func upsertBallotShell(tx *sql.Tx, matchID, userID string, isVoting bool) error {
	var exists bool
	err := tx.QueryRow(`
		SELECT COUNT(*) > 0 FROM ballots WHERE match_id = $1 AND adjudicator_id = $2
	`, matchID, userID).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		_, err = tx.Exec(`
			UPDATE ballots SET is_voting = $1, updated_at = CURRENT_TIMESTAMP
			WHERE match_id = $2 AND adjudicator_id = $3
		`, isVoting, matchID, userID)
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO ballots (id, match_id, adjudicator_id, is_voting)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), matchID, userID, isVoting)
	return err
}

func (h *AllocationHandler) fetchAllocation(id string) (models.Allocation, error) {
	var a models.Allocation
	err := h.db.QueryRow(`
		SELECT id, match_id, user_id, guest_name, role, team_id, speaker_role, is_chair,
		       was_checked_in, allocated_by, created_at, updated_at
		FROM allocations WHERE id = $1
	`, id).Scan(&a.ID, &a.MatchID, &a.UserID, &a.GuestName, &a.Role, &a.TeamID, &a.SpeakerRole,
		&a.IsChair, &a.WasCheckedIn, &a.AllocatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// UpdateAllocation handles PUT /admin/allocations/{id}
func (h *AllocationHandler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.UserFromContext(r.Context())
	allocationID := r.PathValue("id")

	var req models.UpdateAllocationRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Role != nil && !models.ValidAllocationRole(*req.Role) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "unknown role")
		return
	}

	before, err := h.fetchAllocation(allocationID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	unlock := h.locks.Lock(before.MatchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// Re-read under the lock
	before, err = h.fetchAllocationTx(tx, allocationID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	mc, err := loadMatchContext(tx, before.MatchID)
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(mc.Status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+mc.Status)
		return
	}

	after := before
	if req.Role != nil {
		after.Role = *req.Role
	}
	if req.TeamID != nil {
		if *req.TeamID == "" {
			after.TeamID = nil
		} else {
			after.TeamID = req.TeamID
		}
	}
	if req.SpeakerRole != nil {
		if *req.SpeakerRole == "" {
			after.SpeakerRole = nil
		} else {
			after.SpeakerRole = req.SpeakerRole
		}
	}
	if req.IsChair != nil {
		after.IsChair = *req.IsChair
	}

	// Role changes drop fields that no longer apply
	if models.IsAdjudicatorRole(after.Role) {
		if req.TeamID == nil {
			after.TeamID = nil
		}
		if req.SpeakerRole == nil {
			after.SpeakerRole = nil
		}
	} else if req.IsChair == nil {
		after.IsChair = false
	}

	if msg, code := h.validateRoleFields(tx, mc, after.Role, after.TeamID, after.SpeakerRole, after.IsChair, allocationID); msg != "" {
		middleware.ErrorResponse(w, code, msg)
		return
	}

	if after.IsChair && !before.IsChair {
		if _, err := tx.Exec(`
			UPDATE allocations SET is_chair = FALSE, updated_at = CURRENT_TIMESTAMP
			WHERE match_id = $1 AND is_chair
		`, before.MatchID); err != nil {
			slog.Error("failed to demote chair", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
	}

	_, err = tx.Exec(`
		UPDATE allocations
		SET role = $1, team_id = $2, speaker_role = $3, is_chair = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`, after.Role, after.TeamID, after.SpeakerRole, after.IsChair, allocationID)
	if err != nil {
		slog.Error("failed to update allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update allocation")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO allocation_history (id, allocation_id, match_id, user_id, guest_name, action,
			previous_role, new_role, previous_team_id, new_team_id, previous_speaker_role, new_speaker_role, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.New().String(), allocationID, before.MatchID, before.UserID, before.GuestName,
		models.ActionUpdated, before.Role, after.Role, before.TeamID, after.TeamID,
		before.SpeakerRole, after.SpeakerRole, admin.ID)
	if err != nil {
		slog.Error("failed to insert history", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update allocation")
		return
	}

	if models.IsAdjudicatorRole(after.Role) && after.UserID != nil {
		if err := upsertBallotShell(tx, before.MatchID, *after.UserID, after.Role == models.RoleVotingAdjudicator); err != nil {
			slog.Error("failed to refresh ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update allocation")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit allocation update", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update allocation")
		return
	}

	slog.Info("allocation updated", "allocation_id", allocationID, "role", after.Role)

	alloc, err := h.fetchAllocation(allocationID)
	if err != nil {
		slog.Error("failed to read back allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, alloc)
}

func (h *AllocationHandler) fetchAllocationTx(tx *sql.Tx, id string) (models.Allocation, error) {
	var a models.Allocation
	err := tx.QueryRow(`
		SELECT id, match_id, user_id, guest_name, role, team_id, speaker_role, is_chair,
		       was_checked_in, allocated_by, created_at, updated_at
		FROM allocations WHERE id = $1
	`, id).Scan(&a.ID, &a.MatchID, &a.UserID, &a.GuestName, &a.Role, &a.TeamID, &a.SpeakerRole,
		&a.IsChair, &a.WasCheckedIn, &a.AllocatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// DeleteAllocation handles DELETE /admin/allocations/{id}
// Speaker scores referencing the allocation cascade away. Remaining speakers
// keep their roles; nothing is renumbered.
func (h *AllocationHandler) DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.UserFromContext(r.Context())
	allocationID := r.PathValue("id")

	before, err := h.fetchAllocation(allocationID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	unlock := h.locks.Lock(before.MatchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	mc, err := loadMatchContext(tx, before.MatchID)
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(mc.Status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+mc.Status)
		return
	}

	res, err := tx.Exec(`DELETE FROM allocations WHERE id = $1`, allocationID)
	if err != nil {
		slog.Error("failed to delete allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete allocation")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO allocation_history (id, allocation_id, match_id, user_id, guest_name, action,
			previous_role, previous_team_id, previous_speaker_role, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.New().String(), allocationID, before.MatchID, before.UserID, before.GuestName,
		models.ActionDeleted, before.Role, before.TeamID, before.SpeakerRole, admin.ID)
	if err != nil {
		slog.Error("failed to insert history", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete allocation")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit allocation delete", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete allocation")
		return
	}

	slog.Info("allocation deleted", "allocation_id", allocationID, "match_id", before.MatchID)

	w.WriteHeader(http.StatusNoContent)
}

// SwapAllocations handles POST /admin/allocations/swap
// Exchanges role, team, speaker role, and chair flag between two allocations
// of the same match; the people stay put. Speakers swap with speakers,
// adjudicators with adjudicators, resources with resources.
func (h *AllocationHandler) SwapAllocations(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.UserFromContext(r.Context())

	var req models.SwapAllocationsRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.AllocationID1 == "" || req.AllocationID2 == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "allocation_id_1 and allocation_id_2 are required")
		return
	}
	if req.AllocationID1 == req.AllocationID2 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "cannot swap an allocation with itself")
		return
	}

	a, err := h.fetchAllocation(req.AllocationID1)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	b, err := h.fetchAllocation(req.AllocationID2)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	if err != nil {
		slog.Error("failed to query allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Slots only have meaning within their own match: a cross-match exchange
	// would point team references at teams of the wrong match and could seat
	// a second chair. People stay put, so there is nothing a cross-match
	// swap could correctly express.
	if a.MatchID != b.MatchID {
		middleware.ErrorResponse(w, http.StatusBadRequest, "allocations must belong to the same match")
		return
	}
	if roleCategory(a.Role) != roleCategory(b.Role) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "allocations with incompatible roles cannot be swapped")
		return
	}

	unlock := h.locks.Lock(a.MatchID)
	defer unlock()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// Re-read both under the lock
	a, err = h.fetchAllocationTx(tx, req.AllocationID1)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}
	b, err = h.fetchAllocationTx(tx, req.AllocationID2)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Allocation not found")
		return
	}

	// Roles may have changed between the pre-lock check and here
	if roleCategory(a.Role) != roleCategory(b.Role) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "allocations with incompatible roles cannot be swapped")
		return
	}

	mc, err := loadMatchContext(tx, a.MatchID)
	if err != nil {
		slog.Error("failed to query match", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if models.TerminalStatus(mc.Status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Match is "+mc.Status)
		return
	}

	// Clear one side first so slot uniqueness is never violated mid-swap
	if _, err := tx.Exec(`
		UPDATE allocations SET team_id = NULL, speaker_role = NULL, is_chair = FALSE
		WHERE id = $1
	`, a.ID); err != nil {
		slog.Error("failed to stage swap", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
		return
	}
	if _, err := tx.Exec(`
		UPDATE allocations
		SET role = $1, team_id = $2, speaker_role = $3, is_chair = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`, a.Role, a.TeamID, a.SpeakerRole, a.IsChair, b.ID); err != nil {
		slog.Error("failed to swap allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
		return
	}
	if _, err := tx.Exec(`
		UPDATE allocations
		SET role = $1, team_id = $2, speaker_role = $3, is_chair = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`, b.Role, b.TeamID, b.SpeakerRole, b.IsChair, a.ID); err != nil {
		slog.Error("failed to swap allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
		return
	}

	for _, pair := range []struct {
		before, after models.Allocation
	}{
		{before: a, after: b},
		{before: b, after: a},
	} {
		_, err = tx.Exec(`
			INSERT INTO allocation_history (id, allocation_id, match_id, user_id, guest_name, action,
				previous_role, new_role, previous_team_id, new_team_id, previous_speaker_role, new_speaker_role, changed_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, uuid.New().String(), pair.before.ID, pair.before.MatchID, pair.before.UserID, pair.before.GuestName,
			models.ActionSwapped, pair.before.Role, pair.after.Role, pair.before.TeamID, pair.after.TeamID,
			pair.before.SpeakerRole, pair.after.SpeakerRole, admin.ID)
		if err != nil {
			slog.Error("failed to insert history", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
			return
		}
	}

	// Adjudicators keep their ballots in sync with their new voting role
	for _, pair := range []struct {
		alloc   models.Allocation
		newRole string
	}{
		{alloc: a, newRole: b.Role},
		{alloc: b, newRole: a.Role},
	} {
		if models.IsAdjudicatorRole(pair.newRole) && pair.alloc.UserID != nil {
			if err := upsertBallotShell(tx, pair.alloc.MatchID, *pair.alloc.UserID,
				pair.newRole == models.RoleVotingAdjudicator); err != nil {
				slog.Error("failed to refresh ballot", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit swap", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to swap allocations")
		return
	}

	slog.Info("allocations swapped", "allocation_id_1", a.ID, "allocation_id_2", b.ID)

	first1, err := h.fetchAllocation(a.ID)
	if err != nil {
		slog.Error("failed to read back allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	second2, err := h.fetchAllocation(b.ID)
	if err != nil {
		slog.Error("failed to read back allocation", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, []models.Allocation{first1, second2})
}

func roleCategory(role string) string {
	if models.IsAdjudicatorRole(role) {
		return "adjudicator"
	}
	return role
}

// GetHistory handles GET /admin/matches/{id}/history
func (h *AllocationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	page, perPage := parsePagination(r)

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

	var total int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM allocation_history WHERE match_id = $1`, matchID).Scan(&total); err != nil {
		slog.Error("failed to count history", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.Query(`
		SELECT id, allocation_id, match_id, user_id, guest_name, action,
		       previous_role, new_role, previous_team_id, new_team_id,
		       previous_speaker_role, new_speaker_role, changed_by, changed_at, notes
		FROM allocation_history
		WHERE match_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, matchID, perPage, (page-1)*perPage)
	if err != nil {
		slog.Error("failed to query history", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	history := []models.AllocationHistory{}
	for rows.Next() {
		var e models.AllocationHistory
		if err := rows.Scan(&e.ID, &e.AllocationID, &e.MatchID, &e.UserID, &e.GuestName, &e.Action,
			&e.PreviousRole, &e.NewRole, &e.PreviousTeamID, &e.NewTeamID,
			&e.PreviousSpeakerRole, &e.NewSpeakerRole, &e.ChangedBy, &e.ChangedAt, &e.Notes); err != nil {
			slog.Error("failed to scan history", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		history = append(history, e)
	}

	middleware.JSONResponse(w, http.StatusOK, models.AllocationHistoryResponse{
		History:    history,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	})
}
