// loader.go turns the process environment into a validated Config.
//
// Precedence is: exported environment variables win over .env entries, and
// both win over SSM-resolved secrets. Secrets are wired indirectly: a
// variable like DATABASE_URL_SSM_PARAM names the parameter-store path, and
// the loader fetches it and exports DATABASE_URL before envconfig runs.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError carries a ConfigErrorType so callers (and test assertions) can
// distinguish parse, validation, and secret-resolution failures.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ssmParamSuffix marks pointer variables: FOO_SSM_PARAM holds the SSM path
// whose value should be exported as FOO.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv disables secret resolution entirely.
const localEnv = "local"

// envAccess wraps the three environment operations the loader performs, so
// tests can run against a fake environment without touching the real one.
type envAccess struct {
	lookup  func(key string) (string, bool)
	set     func(key, value string) error
	environ func() []string
}

func osEnv() envAccess {
	return envAccess{lookup: os.LookupEnv, set: os.Setenv, environ: os.Environ}
}

// LoadConfig builds the full Config: force UTC, load .env if present,
// resolve any SSM-pointed secrets (non-local only), run envconfig, attach
// build metadata, validate. A nil provider is fine for local development and
// for deployments that export every secret directly.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfig(provider, osEnv())
}

func loadConfig(provider SecretProvider, env envAccess) (*Config, error) {
	// All timestamps in the system are UTC; make the process agree.
	time.Local = time.UTC

	// .env is optional and never overrides exported variables.
	_ = godotenv.Load()

	appEnv, _ := env.lookup("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSecretPointers(provider, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}

// ResolveSecrets runs only the secret-resolution step: SSM-pointed values
// are fetched and exported, and nothing is parsed or validated. Worker entry
// points that read individual variables with os.Getenv (the trial sweeper,
// for one) call this before their first Getenv. No-op when APP_ENV is local
// or no pointer variables exist.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSecretPointers(provider, osEnv())
}

// resolveSecretPointers finds every *_SSM_PARAM variable whose target is not
// already exported, fetches the named parameters in one batch, and exports
// the results. Every pointer must resolve; a missing parameter is an error
// rather than a silently empty secret.
func resolveSecretPointers(provider SecretProvider, env envAccess) error {
	type pointer struct {
		target string // DATABASE_URL
		path   string // /prod/huddle/database/url
	}

	var pointers []pointer
	pathToTarget := make(map[string]string)

	for _, entry := range env.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key := entry[:eq]
		if !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}

		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exported := env.lookup(target); exported {
			// Directly exported values outrank SSM.
			continue
		}
		path := entry[eq+1:]
		if path == "" {
			continue
		}

		pointers = append(pointers, pointer{target: target, path: path})
		pathToTarget[path] = target
	}

	if len(pointers) == 0 {
		return nil
	}

	if provider == nil {
		targets := make([]string, 0, len(pointers))
		for _, p := range pointers {
			targets = append(targets, p.target)
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	paths := make([]string, 0, len(pointers))
	for _, p := range pointers {
		paths = append(paths, p.path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	for path, value := range resolved {
		target, ok := pathToTarget[path]
		if !ok {
			continue
		}
		if err := env.set(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}

	var missing []string
	for _, p := range pointers {
		if _, ok := resolved[p.path]; !ok {
			missing = append(missing, p.target)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
