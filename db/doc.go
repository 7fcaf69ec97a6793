// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation for the SQL document store.

# Schema Creation

CreateSchema initializes the document table:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for the table and index.

# Tables

A single table holds every collection:

  - document: (collection, id) primary key, JSON payload, write time in ms

Collections are single letters: h locations, u profiles, s stats,
e audit log, t submissions, p pending tasks, f dead letters, b backups.

# Indexes

  - document.(collection, id) primary key, used for prefix listing
  - document.(collection, updated_at)
*/
package db
