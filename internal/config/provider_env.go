package config

import (
	"context"
	"os"
)

// EnvVarProvider answers secret lookups straight from the process
// environment. Local development uses it in place of SSM: each "parameter
// path" is treated as a plain variable name. Keys not present in the
// environment are omitted from the result rather than reported as errors.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an environment-backed provider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
