// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/tabrela/auth"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// AuthUser is the authenticated caller attached to the request context.
type AuthUser struct {
	ID       string
	Username string
	IsAdmin  bool
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (AuthUser, bool) {
	u, ok := ctx.Value(userContextKey).(AuthUser)
	return u, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate verifies the bearer token and looks the user up. Admin status
// comes from the database, never from the token.
func authenticate(db *sql.DB, secret string, r *http.Request) (AuthUser, bool) {
	token := bearerToken(r)
	if token == "" {
		return AuthUser{}, false
	}

	claims, err := auth.VerifyAccessToken(secret, token)
	if err != nil {
		return AuthUser{}, false
	}

	var user AuthUser
	err = db.QueryRow(`SELECT id, username, is_admin FROM users WHERE id = $1`,
		claims.Subject).Scan(&user.ID, &user.Username, &user.IsAdmin)
	if err == sql.ErrNoRows {
		return AuthUser{}, false
	}
	if err != nil {
		slog.Error("failed to look up user for token", "error", err)
		return AuthUser{}, false
	}

	return user, true
}

// RequireAuth rejects requests without a valid access token and attaches the
// authenticated user to the request context.
func RequireAuth(db *sql.DB, secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := authenticate(db, secret, r)
		if !ok {
			ErrorResponse(w, http.StatusUnauthorized, "Valid access token required")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// RequireAdmin is RequireAuth plus an is_admin check.
func RequireAdmin(db *sql.DB, secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := authenticate(db, secret, r)
		if !ok {
			ErrorResponse(w, http.StatusUnauthorized, "Valid access token required")
			return
		}
		if !user.IsAdmin {
			ErrorResponse(w, http.StatusForbidden, "Admin access required")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// OptionalAuth attaches the authenticated user when a valid token is present
// but never rejects the request. Handlers use it to widen responses for
// admins (unreleased scores, hidden ranks).
func OptionalAuth(db *sql.DB, secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user, ok := authenticate(db, secret, r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
		}
		next(w, r)
	}
}
