package broker

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"toolgate/pkg/logging"
)

var unverifiedParser = jwt.NewParser()

// decodeClaims parses the registered claims from raw without verifying
// the signature. The token comes from a trusted token endpoint; full
// validation remains the responsibility of the tool server.
func decodeClaims(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// IsExpired reports whether raw's exp claim lies in the past.
//
// Tokens that cannot be decoded (wrong segment count, payload that is
// not valid JSON) and tokens without an exp claim report not-expired.
// This fail-open behavior is deliberate: the local check only exists to
// skip an obviously stale token before a network round trip, and the
// server independently rejects tokens it does not accept. Callers that
// need strict guarantees must verify the token themselves.
func IsExpired(raw string) bool {
	claims, err := decodeClaims(raw)
	if err != nil {
		logging.Debug(subsystem, "Could not decode token claims, assuming token is valid: %v", err)
		return false
	}
	if claims.ExpiresAt == nil {
		logging.Debug(subsystem, "Token has no exp claim, assuming token is valid")
		return false
	}
	return !time.Now().Before(claims.ExpiresAt.Time)
}

// mintToken wraps a freshly issued bearer token with the iat/exp claims
// read from it. When the claims cannot be decoded the fields keep their
// acquisition-time defaults: IssuedAt now, ExpiresAt zero (unknown).
func mintToken(raw string) *Token {
	tok := &Token{
		Value:     raw,
		TokenType: "Bearer",
		IssuedAt:  time.Now(),
	}

	claims, err := decodeClaims(raw)
	if err != nil {
		logging.Debug(subsystem, "Could not decode claims from issued token: %v", err)
		return tok
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok
}
