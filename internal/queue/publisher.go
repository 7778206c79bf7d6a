// Package queue provides the SQS-based publisher for entitlement lifecycle
// events consumed by downstream integrations (CRM sync, analytics, email).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"huddle/internal/config"
	"huddle/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// LifecycleMessage is the envelope placed on the integration queue. The
// payload is event-specific; EventID deduplicates redeliveries on the
// consumer side.
type LifecycleMessage struct {
	EventID    string               `json:"event_id"`
	Event      types.LifecycleEvent `json:"event"`
	UserID     string               `json:"user_id"`
	Payload    map[string]any       `json:"payload,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// LifecyclePublisher implements billing.EventPublisher over SQS. The queue
// URL is optional configuration; when it is empty the publisher is disabled
// and Publish is a silent no-op, so callers never need to branch on whether
// events are wired up.
type LifecyclePublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewLifecyclePublisher creates a LifecyclePublisher with the given SQS
// client and events configuration.
func NewLifecyclePublisher(client SQSSender, eventsCfg config.EventsConfig, logger *slog.Logger) *LifecyclePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecyclePublisher{
		client:   client,
		queueURL: eventsCfg.QueueURL,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// Enabled reports whether a queue URL is configured.
func (p *LifecyclePublisher) Enabled() bool {
	return p.queueURL != ""
}

// Publish serializes the event envelope and sends it to the lifecycle queue.
// The event name rides along as a message attribute so consumers can filter
// without decoding the body.
func (p *LifecyclePublisher) Publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) error {
	if !p.Enabled() {
		return nil
	}

	msg := LifecycleMessage{
		EventID:    uuid.NewString(),
		Event:      event,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: p.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal lifecycle message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send lifecycle event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "lifecycle event published",
		"event_id", msg.EventID,
		"event", string(event),
		"user_id", userID,
	)
	return nil
}
