// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package propagate walks a changed tally up the hierarchy.

# Walk

Each Step is one store transaction against the parent of the hop's child:

	parent := stored or pristine location
	record := child's committed rollup, else the carried record
	tally.Merge(parent, childKey, record)
	write parent if changed

Propagate repeats Step until a parent is unchanged or the root document ""
has been merged. A walk from a station is at most five steps: village,
district, regency, province, root.

	out, err := driver.Propagate(ctx, propagate.Hop{ChildID: stationID, Record: rec})

Retried deliveries pass WithExhaustiveWalk, which keeps walking past
unchanged parents.

# Repair

Rebuild recomputes a subtree from its village documents and propagates
the result upward:

	rollup, err := driver.Rebuild(ctx, "11")
*/
package propagate
