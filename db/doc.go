// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db manages the database schema.

CreateSchema is called once at startup and is idempotent:

	if err := db.CreateSchema(conn); err != nil { ... }

The schema is written to run unchanged on both SQLite (modernc.org/sqlite)
and PostgreSQL (lib/pq): TEXT primary keys carrying UUIDs, CURRENT_TIMESTAMP
defaults, and $N query placeholders used in strictly ascending order
throughout the handlers.

The users and attendance tables belong to the auth and attendance services;
this service only reads them. They are created IF NOT EXISTS so tests and
standalone deployments work against an empty database.
*/
package db
