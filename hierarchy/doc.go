// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package hierarchy loads the reference hierarchy once at startup and builds
pristine (zero-tally) Locations from it.

The hierarchy blob is JSON:

	{
	  "id2name": {"11": "Aceh", "1101": "Simeulue", ...},
	  "tps": {"1101012001": [2], "1101012002": [1, 5, 6], "9901010001": [-3]}
	}

The optional elector table maps a village id to per-station elector counts,
dense range first, then the extended range:

	{"1101012001": [200, 150]}

A *Hierarchy is never mutated after New returns and is passed explicitly to
whatever needs it.
*/
package hierarchy
