// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides actor authentication and token generation utilities.

# Actor Tokens

Actor tokens use HMAC-SHA256 to create deterministic, verifiable tokens:

	token := auth.GenerateActorToken(uid, salt)
	err := auth.ValidateActorToken(uid, token, salt)

The token is URL-safe base64 encoded without padding. Since it's deterministic,
the same uid and salt always produce the same token. This allows validation
without storing the token. Callers present the pair in the X-Actor-ID and
X-Actor-Token headers.

# ID Generation

Random hex IDs for new actors:

	uid, err := auth.GenerateID(12)  // 24 hex characters

# IP Hashing

Anonymous callers are throttled by a hash of their address:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
