// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
//
// users and attendance are owned by the auth and attendance services and are
// only read here; they are created when absent so a standalone deployment
// (and the test suite) can run against an empty database.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Collaborator tables (read-only here)
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS attendance (
    event_id TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES users(id),
    is_checked_in BOOLEAN NOT NULL DEFAULT FALSE,
    checked_in_at TIMESTAMP,
    PRIMARY KEY (event_id, user_id)
);

-- Match series (rounds)
CREATE TABLE IF NOT EXISTS match_series (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    round_number INTEGER,
    team_format TEXT NOT NULL CHECK (team_format IN ('two_team', 'four_team')),
    allow_reply_speeches BOOLEAN NOT NULL DEFAULT FALSE,
    is_break_round BOOLEAN NOT NULL DEFAULT FALSE,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_match_series_event_id ON match_series(event_id);

-- Matches
CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    series_id TEXT NOT NULL REFERENCES match_series(id) ON DELETE CASCADE,
    room_name TEXT,
    motion TEXT,
    info_slide TEXT,
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK (status IN ('draft', 'published', 'in_progress', 'completed', 'cancelled')),
    scheduled_time TIMESTAMP,
    scores_released BOOLEAN NOT NULL DEFAULT FALSE,
    rankings_released BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_matches_series_id ON matches(series_id);
CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);

-- Teams (one row per position per match)
CREATE TABLE IF NOT EXISTS match_teams (
    id TEXT PRIMARY KEY,
    match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    position TEXT NOT NULL CHECK (position IN (
        'government', 'opposition',
        'opening_government', 'opening_opposition',
        'closing_government', 'closing_opposition')),
    team_name TEXT,
    institution TEXT,
    final_rank INTEGER,
    total_speaker_points DOUBLE PRECISION,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (match_id, position)
);

CREATE INDEX IF NOT EXISTS idx_match_teams_match_id ON match_teams(match_id);

-- Allocations (exactly one of user_id / guest_name)
CREATE TABLE IF NOT EXISTS allocations (
    id TEXT PRIMARY KEY,
    match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    user_id TEXT REFERENCES users(id),
    guest_name TEXT,
    role TEXT NOT NULL CHECK (role IN (
        'speaker', 'resource', 'voting_adjudicator', 'non_voting_adjudicator')),
    team_id TEXT REFERENCES match_teams(id) ON DELETE CASCADE,
    speaker_role TEXT,
    is_chair BOOLEAN NOT NULL DEFAULT FALSE,
    was_checked_in BOOLEAN NOT NULL DEFAULT FALSE,
    allocated_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((user_id IS NULL) <> (guest_name IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_allocations_match_id ON allocations(match_id);
CREATE INDEX IF NOT EXISTS idx_allocations_user_id ON allocations(user_id);
CREATE INDEX IF NOT EXISTS idx_allocations_team_id ON allocations(team_id);

-- Allocation audit trail (append-only)
CREATE TABLE IF NOT EXISTS allocation_history (
    id TEXT PRIMARY KEY,
    allocation_id TEXT,
    match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    user_id TEXT,
    guest_name TEXT,
    action TEXT NOT NULL CHECK (action IN ('created', 'updated', 'deleted', 'swapped')),
    previous_role TEXT,
    new_role TEXT,
    previous_team_id TEXT,
    new_team_id TEXT,
    previous_speaker_role TEXT,
    new_speaker_role TEXT,
    changed_by TEXT NOT NULL,
    changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_allocation_history_match_id ON allocation_history(match_id);

-- Ballots (one per adjudicator per match)
CREATE TABLE IF NOT EXISTS ballots (
    id TEXT PRIMARY KEY,
    match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    adjudicator_id TEXT NOT NULL REFERENCES users(id),
    is_voting BOOLEAN NOT NULL DEFAULT TRUE,
    is_submitted BOOLEAN NOT NULL DEFAULT FALSE,
    submitted_at TIMESTAMP,
    notes TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (match_id, adjudicator_id)
);

CREATE INDEX IF NOT EXISTS idx_ballots_match_id ON ballots(match_id);
CREATE INDEX IF NOT EXISTS idx_ballots_adjudicator_id ON ballots(adjudicator_id);

-- Per-speaker scores within a ballot
CREATE TABLE IF NOT EXISTS speaker_scores (
    id TEXT PRIMARY KEY,
    ballot_id TEXT NOT NULL REFERENCES ballots(id) ON DELETE CASCADE,
    allocation_id TEXT NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
    score DOUBLE PRECISION NOT NULL,
    feedback TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (ballot_id, allocation_id)
);

CREATE INDEX IF NOT EXISTS idx_speaker_scores_ballot_id ON speaker_scores(ballot_id);
CREATE INDEX IF NOT EXISTS idx_speaker_scores_allocation_id ON speaker_scores(allocation_id);

-- Per-team rankings within a ballot
CREATE TABLE IF NOT EXISTS team_rankings (
    id TEXT PRIMARY KEY,
    ballot_id TEXT NOT NULL REFERENCES ballots(id) ON DELETE CASCADE,
    team_id TEXT NOT NULL REFERENCES match_teams(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    is_winner BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (ballot_id, team_id)
);

CREATE INDEX IF NOT EXISTS idx_team_rankings_ballot_id ON team_rankings(ballot_id);
CREATE INDEX IF NOT EXISTS idx_team_rankings_team_id ON team_rankings(team_id);
`
