// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package formats encodes the debate team formats as pure lookup functions.

Two formats are supported:

  - two_team: government and opposition, each with first_speaker and
    second_speaker, plus reply_speaker when the series allows replies
  - four_team: British Parliamentary positions (opening/closing
    government and opposition) with two named roles per bench

Handlers use the lookups to stamp team skeletons and validate speaker
assignments:

	for _, pos := range formats.Positions(series.TeamFormat) { ... }

	if !formats.ValidRole(format, team.Position, role, allowReply) {
		// reject
	}
*/
package formats
