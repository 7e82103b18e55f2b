package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (c *captureCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.inputs = append(c.inputs, params)
	if c.err != nil {
		return nil, c.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestRecordDelivery(t *testing.T) {
	cw := &captureCloudWatch{}
	metrics := NewDeliveryMetrics(cw, nil)

	metrics.RecordDelivery(context.Background(), MetricDropped)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "LoveBirdz/Notifications", *input.Namespace)
	require.Len(t, input.MetricData, 1)

	datum := input.MetricData[0]
	assert.Equal(t, "WelcomeDeliveryAttempt", *datum.MetricName)
	assert.Equal(t, float64(1), *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, "Result", *datum.Dimensions[0].Name)
	assert.Equal(t, "dropped", *datum.Dimensions[0].Value)
}

func TestRecordLatencyAndQueueLag(t *testing.T) {
	cw := &captureCloudWatch{}
	metrics := NewDeliveryMetrics(cw, nil)

	metrics.RecordLatency(context.Background(), 250*time.Millisecond)
	metrics.RecordQueueLag(context.Background(), 3*time.Second)

	require.Len(t, cw.inputs, 2)
	assert.Equal(t, "WelcomeDeliveryLatency", *cw.inputs[0].MetricData[0].MetricName)
	assert.Equal(t, float64(250), *cw.inputs[0].MetricData[0].Value)
	assert.Equal(t, "WelcomeQueueLag", *cw.inputs[1].MetricData[0].MetricName)
	assert.Equal(t, float64(3000), *cw.inputs[1].MetricData[0].Value)
}

func TestMetricFailuresAreSwallowed(t *testing.T) {
	cw := &captureCloudWatch{err: errors.New("throttled")}
	metrics := NewDeliveryMetrics(cw, nil)

	// None of these may panic or propagate the failure.
	metrics.RecordDelivery(context.Background(), MetricSuccess)
	metrics.RecordLatency(context.Background(), time.Second)
	metrics.RecordQueueLag(context.Background(), time.Second)
	assert.Len(t, cw.inputs, 3)
}
