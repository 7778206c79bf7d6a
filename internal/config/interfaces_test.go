package config

import (
	"context"
	"testing"
)

// mockSecretProvider returns pre-seeded values; keys it does not know are
// omitted, matching the real providers' contract.
type mockSecretProvider struct {
	values map[string]string
	err    error
}

func (m *mockSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func TestSecretProviderContract(t *testing.T) {
	var provider SecretProvider = &mockSecretProvider{
		values: map[string]string{
			"/dev/huddle/database/url": "postgres://localhost/test",
		},
	}

	result, err := provider.GetParametersBatch(context.Background(),
		[]string{"/dev/huddle/database/url", "/dev/huddle/nonexistent"})
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if got := result["/dev/huddle/database/url"]; got != "postgres://localhost/test" {
		t.Errorf("resolved value = %q", got)
	}
	if _, ok := result["/dev/huddle/nonexistent"]; ok {
		t.Error("unknown path should be omitted, not returned")
	}
}
