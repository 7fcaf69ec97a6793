// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package station implements the leaf mutations of the tally: guard claims,
dispute reports, photo uploads and their reviews, together with the actor
bookkeeping that goes with them.

Every mutation is one store transaction over the station's village
document and the acting actor's profile and statistics. Role checks and
rate limits run inside that transaction, so a refused mutation leaves no
trace. A mutation that changes the station's counters stages a
propagation task in the same transaction and dispatches it after commit:

	res, err := svc.ClaimGuard(ctx, stationID, uid)
	// res.Changed: the village was rewritten and a walk was staged
	// res.Propagated: the walk reached the dispatcher

Errors wrap one of ErrInvalid, ErrUnauthenticated, ErrForbidden,
ErrRateLimited, ErrNotFound or ErrDuplicate. Anything else is a store
failure.

HandleTask is the handler for the dispatch queue. It walks tally tasks
upward and applies deferred uploads and reviews at most once per task.
*/
package station
