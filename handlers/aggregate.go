// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"sort"
)

// recomputeAggregates rewrites final ranks and total speaker points for a
// match from its submitted voting ballots. Runs inside the ballot-submission
// transaction so readers never observe a half-updated standing.
//
// Team order is ascending average rank, re-ranked 1..N by position (ties
// broken by team ID for determinism). A team's total speaker points is the
// sum of its speakers' per-speaker averages. All voting ballots weigh
// equally.
func recomputeAggregates(tx *sql.Tx, matchID string) error {
	type teamAvg struct {
		id  string
		avg float64
	}

	ranked := []teamAvg{}
	rows, err := tx.Query(`
		SELECT tr.team_id, AVG(CAST(tr.rank AS REAL))
		FROM team_rankings tr
		JOIN ballots b ON b.id = tr.ballot_id
		WHERE b.match_id = $1 AND b.is_submitted AND b.is_voting
		GROUP BY tr.team_id
	`, matchID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var t teamAvg
		if err := rows.Scan(&t.id, &t.avg); err != nil {
			rows.Close()
			return err
		}
		ranked = append(ranked, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].avg != ranked[j].avg {
			return ranked[i].avg < ranked[j].avg
		}
		return ranked[i].id < ranked[j].id
	})

	finalRanks := map[string]int{}
	for i, t := range ranked {
		finalRanks[t.id] = i + 1
	}

	// Sum of per-speaker averages per team
	totals := map[string]float64{}
	hasTotal := map[string]bool{}
	scoreRows, err := tx.Query(`
		SELECT al.team_id, AVG(ss.score)
		FROM speaker_scores ss
		JOIN allocations al ON al.id = ss.allocation_id
		JOIN ballots b ON b.id = ss.ballot_id
		WHERE b.match_id = $1 AND b.is_submitted AND b.is_voting AND al.team_id IS NOT NULL
		GROUP BY al.team_id, al.id
	`, matchID)
	if err != nil {
		return err
	}
	for scoreRows.Next() {
		var teamID string
		var avg float64
		if err := scoreRows.Scan(&teamID, &avg); err != nil {
			scoreRows.Close()
			return err
		}
		totals[teamID] += avg
		hasTotal[teamID] = true
	}
	scoreRows.Close()
	if err := scoreRows.Err(); err != nil {
		return err
	}

	teamRows, err := tx.Query(`SELECT id FROM match_teams WHERE match_id = $1`, matchID)
	if err != nil {
		return err
	}
	teamIDs := []string{}
	for teamRows.Next() {
		var id string
		if err := teamRows.Scan(&id); err != nil {
			teamRows.Close()
			return err
		}
		teamIDs = append(teamIDs, id)
	}
	teamRows.Close()
	if err := teamRows.Err(); err != nil {
		return err
	}

	// Teams absent from every submitted ranking are placed after all ranked teams
	for _, id := range teamIDs {
		rank := len(ranked) + 1
		if r, ok := finalRanks[id]; ok {
			rank = r
		}
		var total *float64
		if hasTotal[id] {
			v := totals[id]
			total = &v
		}
		if _, err := tx.Exec(`
			UPDATE match_teams SET final_rank = $1, total_speaker_points = $2, updated_at = CURRENT_TIMESTAMP
			WHERE id = $3
		`, rank, total, id); err != nil {
			return err
		}
	}

	return nil
}
