package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is fixed and explicit so hashes are comparable across
// deployments; bumping it only affects newly written hashes.
const bcryptCost = 12

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
// bcrypt's own comparison is constant-time over the derived key.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
