// Package main is the entrypoint for the Trial Sweeper Lambda function.
//
// The sweeper runs on a schedule (EventBridge rule) and pages through the
// identity directory looking for trials whose end date has passed but whose
// stored state still says active. Expiry is authoritative at read time --
// every evaluation path checks EndsAt itself -- so the sweep only tidies the
// stored flag for admin-facing views and emits the trial.ended lifecycle
// event for downstream consumers.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Resolve SSM-backed secrets into the environment.
//  3. Build the identity client and the lifecycle event publisher.
//  4. Register handler and call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"huddle/internal/billing"
	"huddle/internal/config"
	"huddle/internal/external"
	"huddle/internal/queue"
	"huddle/internal/types"
)

// directoryPageSize is the identity directory page size per listing call.
// pageCap bounds the scan so a runaway directory cannot hold the Lambda
// until its timeout.
const (
	directoryPageSize = 200
	pageCap           = 100
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// The types.Logger interface requires Info, Error, Warn, and With methods.
// slog.Logger satisfies the first three but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Directory is the slice of the identity client the sweeper needs.
type Directory interface {
	ListUsers(ctx context.Context, page, perPage int) ([]types.DirectoryUser, error)
}

// TrialEnder closes out a trial; implemented by billing.TrialManager.
type TrialEnder interface {
	EndTrial(ctx context.Context, userID string) (types.UserEntitlement, error)
}

// SweepResult summarizes one sweep run; returned as the Lambda payload for
// the invocation log.
type SweepResult struct {
	UsersScanned  int `json:"users_scanned"`
	TrialsExpired int `json:"trials_expired"`
	Failures      int `json:"failures"`
}

// Handler holds the dependencies for the sweeper Lambda handler.
type Handler struct {
	directory Directory
	trials    TrialEnder
	clock     types.Clock
	logger    types.Logger
}

// Handle runs one sweep over the identity directory. Per-user failures are
// counted and logged but never abort the sweep: an unreachable user record
// only delays its cleanup until the next scheduled run.
func (h *Handler) Handle(ctx context.Context, _ events.CloudWatchEvent) (SweepResult, error) {
	now := h.clock.Now()
	result := SweepResult{}

	for page := 1; page <= pageCap; page++ {
		users, err := h.directory.ListUsers(ctx, page, directoryPageSize)
		if err != nil {
			// A paging failure is a real problem: report it so the
			// invocation shows as failed and the schedule retries.
			return result, fmt.Errorf("listing users (page %d): %w", page, err)
		}

		for _, user := range users {
			result.UsersScanned++
			if !staleTrial(user.Entitlement.Trial, now) {
				continue
			}

			if _, err := h.trials.EndTrial(ctx, user.ID); err != nil {
				result.Failures++
				h.logger.Error("failed to end expired trial",
					"user_id", user.ID,
					"error", err.Error(),
				)
				continue
			}
			result.TrialsExpired++
			h.logger.Info("expired trial cleared",
				"user_id", user.ID,
				"ended_at", user.Entitlement.Trial.EndsAt.Format(time.RFC3339),
			)
		}

		if len(users) < directoryPageSize {
			break
		}
	}

	h.logger.Info("trial sweep complete",
		"users_scanned", result.UsersScanned,
		"trials_expired", result.TrialsExpired,
		"failures", result.Failures,
	)
	return result, nil
}

// staleTrial reports whether the stored trial state claims to be active even
// though its end date has passed.
func staleTrial(trial *types.TrialState, now time.Time) bool {
	return trial != nil && trial.Active && !trial.EndsAt.After(now)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Trial Sweeper Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	// Resolve SSM-backed secrets (service role key, etc.) into the
	// environment before reading them.
	provider := config.NewSSMProvider(os.Getenv("AWS_REGION"))
	if err := config.ResolveSecrets(provider); err != nil {
		logger.Error("failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	identityBaseURL := os.Getenv("IDENTITY_BASE_URL")
	serviceRoleKey := os.Getenv("IDENTITY_SERVICE_ROLE_KEY")
	if identityBaseURL == "" || serviceRoleKey == "" {
		logger.Error("IDENTITY_BASE_URL and IDENTITY_SERVICE_ROLE_KEY are required")
		os.Exit(1)
	}

	identity := external.NewIdentityClient(
		&http.Client{Timeout: 10 * time.Second},
		external.IdentityClientConfig{
			BaseURL:        identityBaseURL,
			ServiceRoleKey: serviceRoleKey,
			Logger:         logger,
		},
	)

	// Lifecycle event publisher; a missing queue URL downgrades it to a no-op.
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	publisher := queue.NewLifecyclePublisher(
		sqs.NewFromConfig(awsCfg),
		config.EventsConfig{QueueURL: os.Getenv("SQS_LIFECYCLE_EVENTS")},
		logger,
	)

	clock := types.RealClock{}
	trials := billing.NewTrialManager(identity, defaultsCatalog{}, nil, publisher, clock, typedLogger)

	handler := &Handler{
		directory: identity,
		trials:    trials,
		clock:     clock,
		logger:    typedLogger,
	}

	logger.Info("Trial Sweeper Lambda initialized",
		"identity_base_url", identityBaseURL,
		"events_queue_configured", publisher.Enabled(),
	)

	lambda.Start(handler.Handle)
}

// defaultsCatalog serves the built-in catalog. Ending a trial does not read
// plan limits, so the sweeper never needs the database-backed override store.
type defaultsCatalog struct{}

func (defaultsCatalog) Resolve(context.Context) types.PlanCatalog {
	return billing.DefaultCatalog()
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
