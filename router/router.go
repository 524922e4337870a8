// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/handlers"
	"github.com/danielhkuo/tabrela/matchlock"
	"github.com/danielhkuo/tabrela/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Allocation and ballot writes for one match share a lock
	locks := matchlock.New()

	// Initialize handlers
	seriesHandler := handlers.NewSeriesHandler(db, cfg)
	matchHandler := handlers.NewMatchHandler(db, cfg)
	allocationHandler := handlers.NewAllocationHandler(db, cfg, locks)
	poolHandler := handlers.NewPoolHandler(db, cfg)
	ballotHandler := handlers.NewBallotHandler(db, cfg, locks)
	performanceHandler := handlers.NewPerformanceHandler(db, cfg)

	secret := cfg.JWTSecret

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Series
	mux.HandleFunc("GET /series", middleware.WithLogging(middleware.RequireAuth(db, secret, seriesHandler.ListSeries)))
	mux.HandleFunc("GET /series/{id}", middleware.WithLogging(middleware.RequireAuth(db, secret, seriesHandler.GetSeries)))
	mux.HandleFunc("POST /admin/series", middleware.WithLogging(middleware.RequireAdmin(db, secret, seriesHandler.CreateSeries)))
	mux.HandleFunc("PUT /admin/series/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, seriesHandler.UpdateSeries)))
	mux.HandleFunc("DELETE /admin/series/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, seriesHandler.DeleteSeries)))

	// Matches and teams
	mux.HandleFunc("GET /matches", middleware.WithLogging(middleware.RequireAuth(db, secret, matchHandler.ListMatches)))
	mux.HandleFunc("GET /matches/{id}", middleware.WithLogging(middleware.OptionalAuth(db, secret, matchHandler.GetMatch)))
	mux.HandleFunc("POST /admin/matches", middleware.WithLogging(middleware.RequireAdmin(db, secret, matchHandler.CreateMatch)))
	mux.HandleFunc("PUT /admin/matches/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, matchHandler.UpdateMatch)))
	mux.HandleFunc("DELETE /admin/matches/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, matchHandler.DeleteMatch)))
	mux.HandleFunc("POST /admin/matches/{id}/release", middleware.WithLogging(middleware.RequireAdmin(db, secret, matchHandler.Release)))
	mux.HandleFunc("PUT /admin/teams/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, matchHandler.UpdateTeam)))

	// Allocations
	mux.HandleFunc("POST /admin/allocations", middleware.WithLogging(middleware.RequireAdmin(db, secret, allocationHandler.CreateAllocation)))
	mux.HandleFunc("POST /admin/allocations/swap", middleware.WithLogging(middleware.RequireAdmin(db, secret, allocationHandler.SwapAllocations)))
	mux.HandleFunc("PUT /admin/allocations/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, allocationHandler.UpdateAllocation)))
	mux.HandleFunc("DELETE /admin/allocations/{id}", middleware.WithLogging(middleware.RequireAdmin(db, secret, allocationHandler.DeleteAllocation)))
	mux.HandleFunc("GET /admin/matches/{id}/history", middleware.WithLogging(middleware.RequireAdmin(db, secret, allocationHandler.GetHistory)))
	mux.HandleFunc("GET /admin/series/{id}/pool", middleware.WithLogging(middleware.RequireAdmin(db, secret, poolHandler.GetPool)))

	// Ballots
	mux.HandleFunc("GET /matches/{id}/my-ballot", middleware.WithLogging(middleware.RequireAuth(db, secret, ballotHandler.GetMyBallot)))
	mux.HandleFunc("POST /matches/{id}/submit-ballot", middleware.WithLogging(middleware.RequireAuth(db, secret, ballotHandler.SubmitBallot)))
	mux.HandleFunc("POST /matches/{id}/submit-feedback", middleware.WithLogging(middleware.RequireAuth(db, secret, ballotHandler.SubmitFeedback)))
	mux.HandleFunc("GET /admin/matches/{id}/ballots", middleware.WithLogging(middleware.RequireAdmin(db, secret, ballotHandler.ListBallots)))

	// Performance
	mux.HandleFunc("GET /users/{id}/performance", middleware.WithLogging(middleware.RequireAuth(db, secret, performanceHandler.GetPerformance)))

	// Root endpoint; {$} keeps this from becoming a prefix catch-all that
	// would swallow the 405s ServeMux generates for wrong-method requests
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tabrela API v1"))
	})

	return mux
}
