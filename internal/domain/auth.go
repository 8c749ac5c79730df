package domain

import "time"

// TokenType differentiates access and refresh credentials.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// RevocationEntry records a token id that must no longer be accepted.
// Entries past ExpiresAt are dead and may be purged at any time.
type RevocationEntry struct {
	JTI       string    `json:"jti"`
	SubjectID string    `json:"sub"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the entry still matters at now.
func (e RevocationEntry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
