package storage

import "context"

// SettingsStorage is a generic key -> JSON value store used for the
// token signing secret, session config, and the shared-mode flag.
type SettingsStorage interface {
	// GetSetting returns the raw JSON value stored under key
	// Returns ErrSettingNotFound if the key is absent
	GetSetting(ctx context.Context, key string) ([]byte, error)

	// SetSetting stores the raw JSON value under key, replacing any
	// previous value
	SetSetting(ctx context.Context, key string, value []byte) error

	// SetSettingIfAbsent stores value under key only if no value exists
	// yet, and returns the value that is stored afterwards. This is the
	// upsert guard that makes lazy secret creation race-free.
	SetSettingIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error)

	// DeleteSetting removes the key; absent keys are a no-op
	DeleteSetting(ctx context.Context, key string) error
}

// SecretStorage is the access-restricted variant of the settings store
// holding the attestation private key. It is reachable only through the
// attestation service, never from request-serving code.
type SecretStorage interface {
	// GetSecret returns the secret stored under name
	// Returns ErrSecretNotFound if absent
	GetSecret(ctx context.Context, name string) ([]byte, error)

	// PutSecret stores the secret under name
	PutSecret(ctx context.Context, name string, value []byte) error

	// DeleteSecret removes the secret; absent names are a no-op
	DeleteSecret(ctx context.Context, name string) error
}
