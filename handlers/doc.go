// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the tabulation API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - SeriesHandler: series lifecycle (create, list, update, delete)
  - MatchHandler: match lifecycle, release flags, team metadata
  - AllocationHandler: people-to-match assignment, swaps, audit history
  - PoolHandler: checked-in users available to allocate
  - BallotHandler: adjudicator ballots, scores, rankings, feedback
  - PerformanceHandler: per-user win/loss and score record

Handlers are created via constructor functions that accept *sql.DB and
Config; the allocation and ballot handlers also share a matchlock.Arena:

	allocHandler := handlers.NewAllocationHandler(db, cfg, locks)

# Match Lifecycle

Matches progress draft → published → in_progress → completed, with
cancelled reachable from any non-terminal status. Allocation and ballot
writes are refused with 409 once a match is completed or cancelled.

# Allocation Writes

Every allocation mutation locks its match, validates against current state
inside one transaction, and appends an allocation_history row. Creating or
reassigning an adjudicator provisions that adjudicator's draft ballot.
Assigning a new chair demotes the previous chair in the same transaction.

# Ballot Submission

Voting adjudicators submit speaker scores (50-100 in half-point steps) and
a complete team ranking (a permutation of 1..N). Resubmission replaces the
previous contents wholesale. recomputeAggregates rewrites final_rank and
total_speaker_points inside the submission transaction:

	team order   = ascending average rank across submitted voting ballots
	team points  = sum of its speakers' average scores

# Release Gate

scores_released and rankings_released are admin-toggled per match. Until
released, non-admin reads omit speaker scores, total speaker points, and
final ranks. Releasing scores forces rankings released too.
*/
package handlers
