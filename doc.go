// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Tabrela API server.

Tabrela is a tabulation backend for debate events: rounds are grouped into
match series, people are allocated to matches as speakers, adjudicators, or
resources, adjudicators score ballots, and results are released to
participants under admin control.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=postgres://... JWT_SECRET=... go run main.go

Or with flags:

	go run main.go -p 3320 -d "postgres://..." -jwt-secret "..."

# Configuration

Required settings:

  - DATABASE_URL (-d): database connection string
  - JWT_SECRET (-jwt-secret): secret for access token verification

Optional settings:

  - PORT (-p): server port (default: 3320)
  - DATABASE_TYPE (-t): "postgres" or "sqlite" (default: sqlite)

# Architecture

The server uses a handler-based architecture with dependency injection:

  - handlers: HTTP request handlers (series, matches, allocations, ballots)
  - router: Route definitions using Go 1.22+ routing
  - middleware: Auth, CORS, logging, JSON helpers
  - models: Domain and request/response types
  - formats: Debate format definitions (positions, speaker roles)
  - matchlock: Per-match write serialization
  - auth: Access token verification
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
