package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"huddle/internal/config"
	"huddle/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	// calls records every SendMessageInput passed to SendMessage.
	calls []*sqs.SendMessageInput
	// err is returned by SendMessage if non-nil (simulates SQS failures).
	err error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testLifecycleQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/lifecycle-events"

func newTestPublisher(mock *mockSQSSender) *LifecyclePublisher {
	return NewLifecyclePublisher(
		mock,
		config.EventsConfig{QueueURL: testLifecycleQueueURL},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

// --- Tests ---

func TestPublish_SendsEnvelope(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	payload := map[string]any{"plan": "pro", "trial_ends_at": "2026-03-15T00:00:00Z"}
	err := pub.Publish(context.Background(), types.EventTrialStarted, "user-1", payload)
	if err != nil {
		t.Fatalf("Publish returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}

	call := mock.calls[0]
	if *call.QueueUrl != testLifecycleQueueURL {
		t.Errorf("expected queue URL %q, got %q", testLifecycleQueueURL, *call.QueueUrl)
	}

	var msg LifecycleMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if msg.Event != types.EventTrialStarted {
		t.Errorf("expected event %q, got %q", types.EventTrialStarted, msg.Event)
	}
	if msg.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", msg.UserID)
	}
	if msg.EventID == "" {
		t.Error("expected non-empty event ID")
	}
	if msg.Payload["plan"] != "pro" {
		t.Errorf("expected payload to round-trip, got %v", msg.Payload)
	}
}

func TestPublish_SetsEventMessageAttribute(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), types.EventSubscriptionActivated, "user-2", nil)
	if err != nil {
		t.Fatalf("Publish returned unexpected error: %v", err)
	}

	attr, ok := mock.calls[0].MessageAttributes["event"]
	if !ok {
		t.Fatal("expected 'event' message attribute to be set")
	}
	if *attr.StringValue != string(types.EventSubscriptionActivated) {
		t.Errorf("expected event attribute %q, got %q", types.EventSubscriptionActivated, *attr.StringValue)
	}
	if *attr.DataType != "String" {
		t.Errorf("expected DataType 'String', got %q", *attr.DataType)
	}
}

func TestPublish_SetsOccurredAt(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	before := time.Now().UTC()
	if err := pub.Publish(context.Background(), types.EventTrialEnded, "user-3", nil); err != nil {
		t.Fatalf("Publish returned unexpected error: %v", err)
	}
	after := time.Now().UTC()

	var msg LifecycleMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if msg.OccurredAt.Before(before) || msg.OccurredAt.After(after) {
		t.Errorf("OccurredAt %v not in expected range [%v, %v]", msg.OccurredAt, before, after)
	}
}

func TestPublish_UniqueEventIDs(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	for i := 0; i < 3; i++ {
		if err := pub.Publish(context.Background(), types.EventPlanOverridden, "admin-1", nil); err != nil {
			t.Fatalf("Publish returned unexpected error: %v", err)
		}
	}

	seen := make(map[string]bool)
	for _, call := range mock.calls {
		var msg LifecycleMessage
		if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if seen[msg.EventID] {
			t.Errorf("duplicate event ID %q", msg.EventID)
		}
		seen[msg.EventID] = true
	}
}

func TestPublish_DisabledWithoutQueueURL(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewLifecyclePublisher(mock, config.EventsConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if pub.Enabled() {
		t.Error("expected publisher to be disabled without a queue URL")
	}

	err := pub.Publish(context.Background(), types.EventTrialStarted, "user-1", nil)
	if err != nil {
		t.Fatalf("expected no-op publish to succeed, got: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no SQS calls when disabled, got %d", len(mock.calls))
	}
}

func TestPublish_SQSError(t *testing.T) {
	mock := &mockSQSSender{err: fmt.Errorf("service unavailable")}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), types.EventTrialFeePaid, "user-4", nil)
	if err == nil {
		t.Fatal("expected error from Publish, got nil")
	}
	if !strings.Contains(err.Error(), "failed to send lifecycle event") {
		t.Errorf("expected error message to mention the send failure, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), testLifecycleQueueURL) {
		t.Errorf("expected error message to contain queue URL, got %q", err.Error())
	}
}

// Compile-time check that LifecyclePublisher satisfies the publisher contract
// the billing package consumes.
func TestLifecyclePublisherSignature(t *testing.T) {
	pub := newTestPublisher(&mockSQSSender{})

	var fn func(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) error
	fn = pub.Publish
	_ = fn
}
