// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

Internal data structures backed by database rows:

  - Series: a named group of matches within an event (round)
  - Match: a single debate with status and release flags
  - Team: a positional slot in a match (government, opposition, ...)
  - Allocation: a person assigned to a match in a role
  - AllocationHistory: audit record of an allocation change
  - Ballot: an adjudicator's submission shell

# Identity

Allocation embeds Identity, which holds exactly one of a registered
user ID or a free-text guest name:

	if err := req.Identity.Validate(); err != nil { ... }

Identity.Key() produces a comparison key used to reject duplicate
participants within a match.

# Constants

Team formats:

	FormatTwoTeam  = "two_team"
	FormatFourTeam = "four_team"

Match statuses (draft → published → in_progress → completed, with
cancelled reachable from any non-terminal status):

	StatusDraft, StatusPublished, StatusInProgress,
	StatusCompleted, StatusCancelled

Allocation roles:

	RoleSpeaker, RoleResource,
	RoleVotingAdjudicator, RoleNonVotingAdjudicator

Speaker scores are bounded by MinSpeakerScore and MaxSpeakerScore
(50-100 inclusive) in half-point steps.

# Request and Response Types

Request types parse incoming JSON (CreateSeriesRequest,
CreateMatchRequest, CreateAllocationRequest, SubmitBallotRequest, ...).
Response types shape outgoing JSON, including the assembled
MatchResponse with nested teams, speakers, and adjudicators.
*/
package models
