// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package tally holds the pure parts of the aggregation engine: the identifier
scheme and the merge function.

# Identifiers

An identifier's length encodes its level:

	""            root
	11            province
	1101          regency
	110101        district
	1101012001    village
	11010120011   station (village id + station number, 1-3 digits)

ParentID and ChildKey are plain string slicing and accept any input.

# Merge

Merge folds one child's record into a parent Location. It returns
Changed=false when the stored record is newer or carries the same counters,
which is what stops an upward walk and makes retried deliveries harmless.
When it does change, the parent's Rollup is recomputed over all children.
*/
package tally
