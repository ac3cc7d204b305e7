package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that a user with this username or email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrSessionNotFound indicates that session was not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrSettingNotFound indicates that no value is stored under the key
	ErrSettingNotFound = errors.New("setting not found")

	// ErrSecretNotFound indicates that no secret is stored under the name
	ErrSecretNotFound = errors.New("secret not found")

	// ErrMemberNotFound indicates that the email is not a member of the team
	ErrMemberNotFound = errors.New("team member not found")

	// ErrAppInfoNotFound indicates that no server identity has been initialized
	ErrAppInfoNotFound = errors.New("app info not found")
)
