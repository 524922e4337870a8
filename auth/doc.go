// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth verifies access tokens issued by the auth service.

Tokens are HS256 JWTs signed with a secret shared across services. The
expected claims are:

	sub        user ID
	username   display username
	token_type "access"
	exp, iat   standard expiry and issue timestamps
	jti        unique token ID

VerifyAccessToken validates signature, expiry, and token type:

	claims, err := auth.VerifyAccessToken(cfg.JWTSecret, tokenStr)

Admin status is never trusted from the token. Middleware re-checks
users.is_admin in the database on every admin-gated request, so revoking
admin takes effect immediately.

GenerateAccessToken mints tokens for tests and local development.
*/
package auth
