// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/tabrela/matchlock"
	"github.com/danielhkuo/tabrela/middleware"
	"github.com/danielhkuo/tabrela/models"
	"github.com/danielhkuo/tabrela/testutil"
)

func TestCreateAllocation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	create := middleware.RequireAdmin(db, cfg.JWTSecret, handler.CreateAllocation)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)
	matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
	govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)
	oppID := testutil.TeamID(t, db, matchID, models.PositionOpposition)

	otherSeriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)
	otherMatchID := testutil.CreateTestMatch(t, db, otherSeriesID, models.StatusDraft)
	foreignTeamID := testutil.TeamID(t, db, otherMatchID, models.PositionGovernment)

	cancelledMatchID := testutil.CreateTestMatch(t, db, otherSeriesID, models.StatusCancelled)

	alice := testutil.CreateTestUser(t, db, "alice", false)
	bob := testutil.CreateTestUser(t, db, "bob", false)
	carol := testutil.CreateTestUser(t, db, "carol", false)
	dave := testutil.CreateTestUser(t, db, "dave", false)
	testutil.CheckInUser(t, db, "ev-1", alice)

	tests := []struct {
		name           string
		requestBody    models.CreateAllocationRequest
		expectedStatus int
		check          func(t *testing.T, alloc models.Allocation)
	}{
		{
			name: "checked-in speaker",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &alice},
				Role:        models.RoleSpeaker,
				TeamID:      &govID,
				SpeakerRole: strPtr(models.SpeakerRoleFirst),
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, alloc models.Allocation) {
				if !alloc.WasCheckedIn {
					t.Error("Expected was_checked_in to be recorded")
				}
				if alloc.AllocatedBy != adminID {
					t.Errorf("Expected allocated_by %s, got %s", adminID, alloc.AllocatedBy)
				}
			},
		},
		{
			name: "duplicate person in same match",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &alice},
				Role:        models.RoleSpeaker,
				TeamID:      &oppID,
				SpeakerRole: strPtr(models.SpeakerRoleFirst),
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "speaker cannot also be an adjudicator in the same match",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &alice},
				Role:     models.RoleVotingAdjudicator,
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "occupied speaker slot",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &bob},
				Role:        models.RoleSpeaker,
				TeamID:      &govID,
				SpeakerRole: strPtr(models.SpeakerRoleFirst),
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "speaker not checked in",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &bob},
				Role:        models.RoleSpeaker,
				TeamID:      &govID,
				SpeakerRole: strPtr(models.SpeakerRoleSecond),
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, alloc models.Allocation) {
				if alloc.WasCheckedIn {
					t.Error("Expected was_checked_in false for a user who never checked in")
				}
			},
		},
		{
			name: "guest speaker",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{GuestName: strPtr("Visiting Debater")},
				Role:        models.RoleSpeaker,
				TeamID:      &oppID,
				SpeakerRole: strPtr(models.SpeakerRoleFirst),
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, alloc models.Allocation) {
				if alloc.UserID != nil {
					t.Error("Expected guest allocation to have no user_id")
				}
			},
		},
		{
			name: "reply speaker when replies disabled",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &carol},
				Role:        models.RoleSpeaker,
				TeamID:      &govID,
				SpeakerRole: strPtr(models.SpeakerRoleReply),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "speaker missing team",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &carol},
				Role:        models.RoleSpeaker,
				SpeakerRole: strPtr(models.SpeakerRoleFirst),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "speaker missing speaker_role",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &carol},
				Role:     models.RoleSpeaker,
				TeamID:   &govID,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "team from another match",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &carol},
				Role:        models.RoleSpeaker,
				TeamID:      &foreignTeamID,
				SpeakerRole: strPtr(models.SpeakerRoleSecond),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "chair flag on a speaker",
			requestBody: models.CreateAllocationRequest{
				MatchID:     matchID,
				Identity:    models.Identity{UserID: &carol},
				Role:        models.RoleSpeaker,
				TeamID:      &oppID,
				SpeakerRole: strPtr(models.SpeakerRoleSecond),
				IsChair:     true,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "adjudicator with a team",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &carol},
				Role:     models.RoleVotingAdjudicator,
				TeamID:   &govID,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "voting adjudicator gets a ballot",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &carol},
				Role:     models.RoleVotingAdjudicator,
				IsChair:  true,
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, alloc models.Allocation) {
				var isVoting bool
				err := db.QueryRow(`
					SELECT is_voting FROM ballots WHERE match_id = $1 AND adjudicator_id = $2
				`, matchID, carol).Scan(&isVoting)
				if err != nil {
					t.Fatalf("Expected a provisioned ballot: %v", err)
				}
				if !isVoting {
					t.Error("Expected ballot is_voting true")
				}
			},
		},
		{
			name: "resource without a team",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &dave},
				Role:     models.RoleResource,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "both user and guest",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &dave, GuestName: strPtr("Ghost")},
				Role:     models.RoleNonVotingAdjudicator,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "neither user nor guest",
			requestBody: models.CreateAllocationRequest{
				MatchID: matchID,
				Role:    models.RoleNonVotingAdjudicator,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown user",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: strPtr("nope")},
				Role:     models.RoleNonVotingAdjudicator,
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "unknown match",
			requestBody: models.CreateAllocationRequest{
				MatchID:  "nope",
				Identity: models.Identity{UserID: &dave},
				Role:     models.RoleNonVotingAdjudicator,
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "unknown role",
			requestBody: models.CreateAllocationRequest{
				MatchID:  matchID,
				Identity: models.Identity{UserID: &dave},
				Role:     "coach",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "cancelled match rejects writes",
			requestBody: models.CreateAllocationRequest{
				MatchID:  cancelledMatchID,
				Identity: models.Identity{UserID: &dave},
				Role:     models.RoleNonVotingAdjudicator,
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/admin/allocations", tt.requestBody, headers)
			w := httptest.NewRecorder()

			create(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus == http.StatusCreated && tt.check != nil {
				var alloc models.Allocation
				testutil.AssertJSON(t, w, &alloc)
				tt.check(t, alloc)
			}
		})
	}
}

func TestCreateAllocationChairDemotion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	create := middleware.RequireAdmin(db, cfg.JWTSecret, handler.CreateAllocation)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)
	matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)

	oldChair := testutil.CreateTestUser(t, db, "old-chair", false)
	oldAllocID := testutil.CreateTestAllocation(t, db, matchID, oldChair, models.RoleVotingAdjudicator, "", "", true)

	newChair := testutil.CreateTestUser(t, db, "new-chair", false)
	body := models.CreateAllocationRequest{
		MatchID:  matchID,
		Identity: models.Identity{UserID: &newChair},
		Role:     models.RoleVotingAdjudicator,
		IsChair:  true,
	}
	req := testutil.MakeRequest("POST", "/admin/allocations", body, headers)
	w := httptest.NewRecorder()

	create(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var wasChair bool
	if err := db.QueryRow(`SELECT is_chair FROM allocations WHERE id = $1`, oldAllocID).Scan(&wasChair); err != nil {
		t.Fatal(err)
	}
	if wasChair {
		t.Error("Expected the previous chair to be demoted")
	}

	var chairs int
	if err := db.QueryRow(`SELECT COUNT(*) FROM allocations WHERE match_id = $1 AND is_chair`, matchID).Scan(&chairs); err != nil {
		t.Fatal(err)
	}
	if chairs != 1 {
		t.Errorf("Expected exactly one chair, got %d", chairs)
	}
}

func TestUpdateAllocation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	update := middleware.RequireAdmin(db, cfg.JWTSecret, handler.UpdateAllocation)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)

	t.Run("move speaker to another slot", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)
		oppID := testutil.TeamID(t, db, matchID, models.PositionOpposition)

		speaker := testutil.CreateTestUser(t, db, "mover", false)
		allocID := testutil.CreateTestAllocation(t, db, matchID, speaker, models.RoleSpeaker, govID, models.SpeakerRoleFirst, false)

		body := models.UpdateAllocationRequest{
			TeamID:      &oppID,
			SpeakerRole: strPtr(models.SpeakerRoleSecond),
		}
		req := testutil.MakeRequest("PUT", "/admin/allocations/"+allocID, body, headers)
		req.SetPathValue("id", allocID)
		w := httptest.NewRecorder()

		update(w, req)

		testutil.AssertStatus(t, w, http.StatusOK)

		var alloc models.Allocation
		testutil.AssertJSON(t, w, &alloc)
		if alloc.TeamID == nil || *alloc.TeamID != oppID {
			t.Error("Expected team_id to change")
		}
		if alloc.SpeakerRole == nil || *alloc.SpeakerRole != models.SpeakerRoleSecond {
			t.Error("Expected speaker_role to change")
		}
	})

	t.Run("promote speaker to adjudicator", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)

		speaker := testutil.CreateTestUser(t, db, "promoted", false)
		allocID := testutil.CreateTestAllocation(t, db, matchID, speaker, models.RoleSpeaker, govID, models.SpeakerRoleFirst, false)

		body := models.UpdateAllocationRequest{Role: strPtr(models.RoleVotingAdjudicator)}
		req := testutil.MakeRequest("PUT", "/admin/allocations/"+allocID, body, headers)
		req.SetPathValue("id", allocID)
		w := httptest.NewRecorder()

		update(w, req)

		testutil.AssertStatus(t, w, http.StatusOK)

		var alloc models.Allocation
		testutil.AssertJSON(t, w, &alloc)
		if alloc.TeamID != nil || alloc.SpeakerRole != nil {
			t.Error("Expected team fields dropped when promoting to adjudicator")
		}

		var ballots int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ballots WHERE match_id = $1 AND adjudicator_id = $2`, matchID, speaker).Scan(&ballots); err != nil {
			t.Fatal(err)
		}
		if ballots != 1 {
			t.Errorf("Expected a provisioned ballot after role change, got %d", ballots)
		}
	})

	t.Run("completed match rejects updates", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		adjudicator := testutil.CreateTestUser(t, db, "locked-in", false)
		allocID := testutil.CreateTestAllocation(t, db, matchID, adjudicator, models.RoleVotingAdjudicator, "", "", false)

		if _, err := db.Exec(`UPDATE matches SET status = $1 WHERE id = $2`, models.StatusCompleted, matchID); err != nil {
			t.Fatal(err)
		}

		body := models.UpdateAllocationRequest{IsChair: boolPtr(true)}
		req := testutil.MakeRequest("PUT", "/admin/allocations/"+allocID, body, headers)
		req.SetPathValue("id", allocID)
		w := httptest.NewRecorder()

		update(w, req)

		testutil.AssertStatus(t, w, http.StatusConflict)
	})

	t.Run("allocation not found", func(t *testing.T) {
		body := models.UpdateAllocationRequest{IsChair: boolPtr(true)}
		req := testutil.MakeRequest("PUT", "/admin/allocations/nope", body, headers)
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()

		update(w, req)

		testutil.AssertStatus(t, w, http.StatusNotFound)
	})
}

func TestDeleteAllocation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	del := middleware.RequireAdmin(db, cfg.JWTSecret, handler.DeleteAllocation)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)
	matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
	govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)

	speaker := testutil.CreateTestUser(t, db, "leaver", false)
	allocID := testutil.CreateTestAllocation(t, db, matchID, speaker, models.RoleSpeaker, govID, models.SpeakerRoleFirst, false)

	req := testutil.MakeRequest("DELETE", "/admin/allocations/"+allocID, nil, headers)
	req.SetPathValue("id", allocID)
	w := httptest.NewRecorder()

	del(w, req)

	testutil.AssertStatus(t, w, http.StatusNoContent)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM allocations WHERE id = $1`, allocID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("Expected allocation to be deleted")
	}

	var action string
	err := db.QueryRow(`
		SELECT action FROM allocation_history WHERE allocation_id = $1 ORDER BY changed_at DESC LIMIT 1
	`, allocID).Scan(&action)
	if err != nil {
		t.Fatal(err)
	}
	if action != models.ActionDeleted {
		t.Errorf("Expected a deleted history entry, got %s", action)
	}

	// Deleting again is a 404
	req = testutil.MakeRequest("DELETE", "/admin/allocations/"+allocID, nil, headers)
	req.SetPathValue("id", allocID)
	w = httptest.NewRecorder()

	del(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestSwapAllocations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	swap := middleware.RequireAdmin(db, cfg.JWTSecret, handler.SwapAllocations)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)

	t.Run("speakers exchange slots", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)
		oppID := testutil.TeamID(t, db, matchID, models.PositionOpposition)

		alice := testutil.CreateTestUser(t, db, "swap-alice", false)
		bob := testutil.CreateTestUser(t, db, "swap-bob", false)
		allocA := testutil.CreateTestAllocation(t, db, matchID, alice, models.RoleSpeaker, govID, models.SpeakerRoleFirst, false)
		allocB := testutil.CreateTestAllocation(t, db, matchID, bob, models.RoleSpeaker, oppID, models.SpeakerRoleSecond, false)

		body := models.SwapAllocationsRequest{AllocationID1: allocA, AllocationID2: allocB}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusOK)

		var result []models.Allocation
		testutil.AssertJSON(t, w, &result)
		if len(result) != 2 {
			t.Fatalf("Expected 2 allocations, got %d", len(result))
		}

		byID := map[string]models.Allocation{result[0].ID: result[0], result[1].ID: result[1]}

		a := byID[allocA]
		if a.UserID == nil || *a.UserID != alice {
			t.Error("Expected swap to keep the person in place")
		}
		if a.TeamID == nil || *a.TeamID != oppID {
			t.Error("Expected first allocation to take the opposition slot")
		}
		if a.SpeakerRole == nil || *a.SpeakerRole != models.SpeakerRoleSecond {
			t.Error("Expected first allocation to take the second_speaker role")
		}

		b := byID[allocB]
		if b.TeamID == nil || *b.TeamID != govID {
			t.Error("Expected second allocation to take the government slot")
		}

		var swapped int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM allocation_history WHERE match_id = $1 AND action = $2
		`, matchID, models.ActionSwapped).Scan(&swapped); err != nil {
			t.Fatal(err)
		}
		if swapped != 2 {
			t.Errorf("Expected 2 swapped history entries, got %d", swapped)
		}
	})

	t.Run("cross-match chair swap is rejected", func(t *testing.T) {
		matchA := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		matchB := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)

		chairA := testutil.CreateTestUser(t, db, "swap-chair-a", false)
		chairB := testutil.CreateTestUser(t, db, "swap-chair-b", false)
		wingB := testutil.CreateTestUser(t, db, "swap-wing-b", false)
		allocA := testutil.CreateTestAllocation(t, db, matchA, chairA, models.RoleVotingAdjudicator, "", "", true)
		testutil.CreateTestAllocation(t, db, matchB, chairB, models.RoleVotingAdjudicator, "", "", true)
		allocB := testutil.CreateTestAllocation(t, db, matchB, wingB, models.RoleVotingAdjudicator, "", "", false)

		body := models.SwapAllocationsRequest{AllocationID1: allocA, AllocationID2: allocB}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusBadRequest)

		var chairs int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM allocations WHERE match_id = $1 AND is_chair
		`, matchB).Scan(&chairs); err != nil {
			t.Fatal(err)
		}
		if chairs != 1 {
			t.Errorf("Expected 1 chair in the second match, got %d", chairs)
		}
	})

	t.Run("cross-match speaker swap is rejected", func(t *testing.T) {
		matchA := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		matchB := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		govA := testutil.TeamID(t, db, matchA, models.PositionGovernment)
		govB := testutil.TeamID(t, db, matchB, models.PositionGovernment)

		alice := testutil.CreateTestUser(t, db, "swap-far-alice", false)
		bob := testutil.CreateTestUser(t, db, "swap-far-bob", false)
		allocA := testutil.CreateTestAllocation(t, db, matchA, alice, models.RoleSpeaker, govA, models.SpeakerRoleFirst, false)
		allocB := testutil.CreateTestAllocation(t, db, matchB, bob, models.RoleSpeaker, govB, models.SpeakerRoleFirst, false)

		body := models.SwapAllocationsRequest{AllocationID1: allocA, AllocationID2: allocB}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusBadRequest)

		// Every speaker's team must still belong to the speaker's own match
		var strayed int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM allocations al
			JOIN match_teams mt ON mt.id = al.team_id
			WHERE al.id IN ($1, $2) AND mt.match_id != al.match_id
		`, allocA, allocB).Scan(&strayed); err != nil {
			t.Fatal(err)
		}
		if strayed != 0 {
			t.Errorf("Expected no allocations pointing at another match's team, got %d", strayed)
		}
	})

	t.Run("incompatible roles", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		govID := testutil.TeamID(t, db, matchID, models.PositionGovernment)

		speaker := testutil.CreateTestUser(t, db, "swap-speaker", false)
		judge := testutil.CreateTestUser(t, db, "swap-judge", false)
		allocA := testutil.CreateTestAllocation(t, db, matchID, speaker, models.RoleSpeaker, govID, models.SpeakerRoleFirst, false)
		allocB := testutil.CreateTestAllocation(t, db, matchID, judge, models.RoleVotingAdjudicator, "", "", false)

		body := models.SwapAllocationsRequest{AllocationID1: allocA, AllocationID2: allocB}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("self swap", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		judge := testutil.CreateTestUser(t, db, "swap-self", false)
		allocID := testutil.CreateTestAllocation(t, db, matchID, judge, models.RoleVotingAdjudicator, "", "", false)

		body := models.SwapAllocationsRequest{AllocationID1: allocID, AllocationID2: allocID}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("missing allocation", func(t *testing.T) {
		matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)
		judge := testutil.CreateTestUser(t, db, "swap-lonely", false)
		allocID := testutil.CreateTestAllocation(t, db, matchID, judge, models.RoleVotingAdjudicator, "", "", false)

		body := models.SwapAllocationsRequest{AllocationID1: allocID, AllocationID2: "nope"}
		req := testutil.MakeRequest("POST", "/admin/allocations/swap", body, headers)
		w := httptest.NewRecorder()

		swap(w, req)

		testutil.AssertStatus(t, w, http.StatusNotFound)
	})
}

func TestGetHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAllocationHandler(db, cfg, matchlock.New())

	adminID := testutil.CreateTestUser(t, db, "admin", true)
	headers := testutil.AuthHeader(t, cfg, adminID, "admin")
	create := middleware.RequireAdmin(db, cfg.JWTSecret, handler.CreateAllocation)
	del := middleware.RequireAdmin(db, cfg.JWTSecret, handler.DeleteAllocation)
	history := middleware.RequireAdmin(db, cfg.JWTSecret, handler.GetHistory)

	seriesID := testutil.CreateTestSeries(t, db, "ev-1", adminID, models.FormatTwoTeam, false)
	matchID := testutil.CreateTestMatch(t, db, seriesID, models.StatusDraft)

	judge := testutil.CreateTestUser(t, db, "historic", false)
	body := models.CreateAllocationRequest{
		MatchID:  matchID,
		Identity: models.Identity{UserID: &judge},
		Role:     models.RoleVotingAdjudicator,
	}
	req := testutil.MakeRequest("POST", "/admin/allocations", body, headers)
	w := httptest.NewRecorder()
	create(w, req)
	testutil.AssertStatus(t, w, http.StatusCreated)

	var alloc models.Allocation
	testutil.AssertJSON(t, w, &alloc)

	req = testutil.MakeRequest("DELETE", "/admin/allocations/"+alloc.ID, nil, headers)
	req.SetPathValue("id", alloc.ID)
	w = httptest.NewRecorder()
	del(w, req)
	testutil.AssertStatus(t, w, http.StatusNoContent)

	req = testutil.MakeRequest("GET", "/admin/matches/"+matchID+"/history", nil, headers)
	req.SetPathValue("id", matchID)
	w = httptest.NewRecorder()

	history(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.AllocationHistoryResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.Total != 2 {
		t.Fatalf("Expected 2 history entries, got %d", resp.Total)
	}
	actions := map[string]bool{}
	for _, e := range resp.History {
		actions[e.Action] = true
	}
	if !actions[models.ActionCreated] || !actions[models.ActionDeleted] {
		t.Errorf("Expected created and deleted entries, got %v", actions)
	}

	t.Run("unknown match", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/admin/matches/nope/history", nil, headers)
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()

		history(w, req)

		testutil.AssertStatus(t, w, http.StatusNotFound)
	})
}
