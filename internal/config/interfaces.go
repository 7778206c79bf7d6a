package config

import "context"

// SecretProvider is where the loader fetches secret values from. Deployed
// environments use the SSM-backed provider; local development uses the
// environment-variable one (or none at all).
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a
	// map of path to plaintext value for everything it found.
	// Implementations own their batching and retry behavior.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
