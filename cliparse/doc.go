// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Layers

Each layer overrides the one before it:

 1. Defaults()
 2. the YAML file named by --config
 3. the dotenv file named by --env-file (default .env, skipped when missing)
 4. environment variables, TALLY_PORT or the bare PORT
 5. flags given on the command line

# CLI Flags

	-p, --port          Server port (default 3318)
	-t, --db-type       badger, postgres or sqlite (default badger)
	-d, --database-url  Database URL for postgres or sqlite
	--data-dir          Badger directory, in-memory when empty
	--actor-salt        Actor token salt
	--hierarchy         Hierarchy JSON (default data/hierarchy.json)
	--electors          Per-village elector JSON
	--workers           Concurrent deliveries (default 6)
	--max-retries       Retries per task (default 5)
	--min-backoff       First retry delay (default 1m)
	--max-backoff       Retry delay ceiling (default 1h)
	--delivery-timeout  Deadline of one attempt (default 5m)
	--sync              Propagate inline instead of queueing
	--async-intake      Apply uploads and reviews through the queue
	--image-resolver    none, gsu or gcs
	--trace-exporter    none or stdout

# Validation

ParseFlags returns an error if required values are missing:

  - ACTOR_SALT must be provided
  - DATABASE_URL must be provided for postgres and sqlite
  - GSU_ENDPOINT for the gsu resolver, IMAGE_BUCKET for gcs

# Example

	// In main.go
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	mux := router.NewRouter(deps, cfg)
*/
package cliparse
