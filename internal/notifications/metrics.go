package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names and dimensions emitted by the email worker.
const (
	metricNamespace       = "LoveBirdz/Notifications"
	metricDeliveryAttempt = "WelcomeDeliveryAttempt"
	metricDeliveryLatency = "WelcomeDeliveryLatency"
	metricQueueLag        = "WelcomeQueueLag"
	dimResult             = "Result"
)

// MetricResult labels a delivery outcome dimension value.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failure"
	MetricDropped MetricResult = "dropped"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// DeliveryMetrics emits welcome email telemetry to CloudWatch. Emission is
// fire and forget: a metrics failure is logged and never affects message
// processing.
type DeliveryMetrics struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewDeliveryMetrics creates a DeliveryMetrics publishing to the
// notifications namespace.
func NewDeliveryMetrics(client CloudWatchClient, logger *slog.Logger) *DeliveryMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryMetrics{
		client: client,
		logger: logger,
	}
}

// RecordDelivery emits a delivery attempt metric with the Result dimension.
func (m *DeliveryMetrics) RecordDelivery(ctx context.Context, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record delivery metric",
			"error", err,
			"result", string(result),
		)
	}
}

// RecordLatency emits the time taken for a delivery attempt, in
// milliseconds for CloudWatch precision.
func (m *DeliveryMetrics) RecordLatency(ctx context.Context, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record latency metric",
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordQueueLag emits the time between message enqueue and worker
// processing start, covering SQS backlog and visibility delay.
func (m *DeliveryMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricQueueLag),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record queue lag metric",
			"error", err,
			"lag_ms", lag.Milliseconds(),
		)
	}
}
