package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "Secret123!", hash)

	// Same password hashes differently every time (random salt)
	hash2, err := HashPassword("Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{
			name:     "correct password",
			password: "Secret123!",
			want:     true,
		},
		{
			name:     "wrong password",
			password: "wrong-password",
			want:     false,
		},
		{
			name:     "empty password",
			password: "",
			want:     false,
		},
		{
			name:     "case sensitive",
			password: "secret123!",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPassword(tt.password, hash))
		})
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	assert.False(t, VerifyPassword("Secret123!", "not-a-bcrypt-hash"))
}
