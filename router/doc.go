// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the tabulation API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

# Endpoints

Health:

	GET /health

Series (authenticated reads, admin writes):

	GET    /series                  - List series for an event
	GET    /series/{id}             - Series details
	POST   /admin/series            - Create series
	PUT    /admin/series/{id}       - Update series
	DELETE /admin/series/{id}       - Delete series (cascades)

Matches and teams:

	GET    /matches                  - List matches (series or event filter)
	GET    /matches/{id}             - Match with teams and adjudicators
	POST   /admin/matches            - Create match (stamps team skeleton)
	PUT    /admin/matches/{id}       - Update fields / advance status
	DELETE /admin/matches/{id}       - Delete match (cascades)
	POST   /admin/matches/{id}/release - Toggle score/ranking release
	PUT    /admin/teams/{id}         - Set team name / institution

Allocations (all admin):

	POST   /admin/allocations          - Allocate a person to a match
	POST   /admin/allocations/swap     - Exchange two allocations' seats
	PUT    /admin/allocations/{id}     - Reassign role/team/speaker slot
	DELETE /admin/allocations/{id}     - Remove allocation
	GET    /admin/matches/{id}/history - Allocation audit trail
	GET    /admin/series/{id}/pool     - Checked-in users available to allocate

Ballots:

	GET  /matches/{id}/my-ballot       - Adjudicator's own ballot
	POST /matches/{id}/submit-ballot   - Submit scores and rankings (voting)
	POST /matches/{id}/submit-feedback - Submit notes only
	GET  /admin/matches/{id}/ballots   - All ballots for a match

Performance:

	GET /users/{id}/performance - Win/loss and score record

# Authorization

GET /matches/{id} uses OptionalAuth so spectators can read released results;
everything else under /admin requires middleware.RequireAdmin and the rest
requires middleware.RequireAuth. Admin status is re-read from the users table
on every request.
*/
package router
