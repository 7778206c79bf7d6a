package billing

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"huddle/internal/types"
)

// metricNamespace is the CloudWatch namespace for entitlement metrics.
const metricNamespace = "Huddle/Entitlements"

// MetricsRecorder records entitlement decisions and payment outcomes for
// observability. Recording is fire-and-forget: failures are logged, never
// returned.
type MetricsRecorder interface {
	// RecordDecision counts an evaluator decision by check name and outcome.
	RecordDecision(ctx context.Context, check string, allowed bool)

	// RecordPayment counts a processed payment event by provider and outcome.
	RecordPayment(ctx context.Context, provider types.PaymentProvider, kind types.PaymentKind, outcome string)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements MetricsRecorder by emitting to CloudWatch.
//
// Metrics emitted:
//   - EntitlementDecision: Dims {Check, Outcome}
//   - PaymentProcessed:    Dims {Provider, Kind, Outcome}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ MetricsRecorder = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a recorder publishing to the entitlement namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: metricNamespace,
		logger:    logger,
	}
}

// RecordDecision emits an EntitlementDecision count metric.
func (m *CloudWatchMetrics) RecordDecision(ctx context.Context, check string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("EntitlementDecision"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Check"), Value: aws.String(check)},
					{Name: aws.String("Outcome"), Value: aws.String(outcome)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record decision metric",
			"error", err.Error(),
			"check", check,
			"outcome", outcome,
		)
	}
}

// RecordPayment emits a PaymentProcessed count metric.
func (m *CloudWatchMetrics) RecordPayment(ctx context.Context, provider types.PaymentProvider, kind types.PaymentKind, outcome string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("PaymentProcessed"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Provider"), Value: aws.String(string(provider))},
					{Name: aws.String("Kind"), Value: aws.String(string(kind))},
					{Name: aws.String("Outcome"), Value: aws.String(outcome)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record payment metric",
			"error", err.Error(),
			"provider", string(provider),
			"outcome", outcome,
		)
	}
}

// NoopMetrics discards all metrics. Used in tests and stub mode.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordDecision(context.Context, string, bool) {}
func (NoopMetrics) RecordPayment(context.Context, types.PaymentProvider, types.PaymentKind, string) {
}
