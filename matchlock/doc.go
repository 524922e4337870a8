// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package matchlock serializes writes per match.

Allocation and ballot handlers acquire the match's mutex before opening
their transaction, so validation reads and the subsequent writes observe
a stable view of the match:

	unlock := h.locks.Lock(matchID)
	defer unlock()

	tx, err := h.db.Begin()
	...

Writes for different matches never contend.
*/
package matchlock
