// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Quickly Tally API server.

Quickly Tally collects per-station vote counts from photographed tally
sheets and keeps running totals for every village, district, regency,
province and the nation. Each write at a station is folded upward one
level at a time until an ancestor no longer changes.

# Starting the Server

	ACTOR_SALT=... go run . serve

Or with flags:

	go run . serve -p 3318 -t sqlite -d tally.db --hierarchy data/hierarchy.json

Running without a subcommand is the same as serve.

# Operator Commands

	quickly-tally recompute [id]              Rebuild a subtree from its villages
	quickly-tally replay                      Deliver dead-lettered propagations again
	quickly-tally actor register <name> [email]
	quickly-tally actor set-role <uid> <role>
	quickly-tally actor reset <uid>

Every command takes the same flags, read from defaults, a YAML file
(-c), a dotenv file, TALLY_* environment variables and the command line.

# Configuration

Required settings:

  - ACTOR_SALT (--actor-salt): Secret for actor token HMAC
  - DATABASE_URL (-d): when the store is postgres or sqlite

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): badger, postgres or sqlite (default: badger)
  - DATA_DIR: Badger directory, in-memory when empty
  - SYNC_DELIVERY: propagate inline instead of through the queue
  - IMAGE_RESOLVER: none, gsu or gcs

# Architecture

  - tally: identifiers, record merge and rollup arithmetic
  - hierarchy: reference data and pristine documents
  - store: transactional document store (badger, postgres, sqlite)
  - propagate: the upward walk and subtree rebuild
  - queue: durable at-least-once delivery of propagation tasks
  - station: guard claims, disputes, uploads, reviews and actors
  - imageurl: serving URLs for uploaded photos
  - handlers, router, middleware: the HTTP surface
  - cliparse, metrics, telemetry: configuration and observability

See package documentation for each component.
*/
package main
