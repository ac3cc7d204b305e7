package session

import "github.com/opsdeck/opsdeck/internal/auth"

// hashOf keys session rows by token digest; raw tokens are never stored.
func hashOf(token string) string {
	return auth.HashToken(token)
}
