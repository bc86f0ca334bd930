package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/voxloop/internal/logging"
)

type fakeCW struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (f *fakeCW) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.calls = append(f.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchBuffersUntilFlush(t *testing.T) {
	fake := &fakeCW{}
	pub := NewCloudWatch(fake, "Voxloop", logging.New(nil, "silent"))

	pub.Latency("TotalLatency", 120*time.Millisecond)
	pub.Count("TurnsProcessed", 1)
	assert.Empty(t, fake.calls)

	pub.Flush()
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "Voxloop", *fake.calls[0].Namespace)
	require.Len(t, fake.calls[0].MetricData, 2)
	assert.Equal(t, "TotalLatency", *fake.calls[0].MetricData[0].MetricName)
	assert.Equal(t, 120.0, *fake.calls[0].MetricData[0].Value)
}

func TestCloudWatchFlushEmptyIsNoop(t *testing.T) {
	fake := &fakeCW{}
	pub := NewCloudWatch(fake, "Voxloop", logging.New(nil, "silent"))

	pub.Flush()
	assert.Empty(t, fake.calls)
}

func TestCloudWatchChunksLargeBatches(t *testing.T) {
	fake := &fakeCW{}
	pub := NewCloudWatch(fake, "Voxloop", logging.New(nil, "silent"))

	for i := 0; i < 45; i++ {
		pub.Count("X", 1)
	}
	pub.Flush()

	require.Len(t, fake.calls, 3)
	assert.Len(t, fake.calls[0].MetricData, 20)
	assert.Len(t, fake.calls[2].MetricData, 5)
}

func TestCloudWatchPublishFailureIsSwallowed(t *testing.T) {
	fake := &fakeCW{err: errors.New("throttled")}
	pub := NewCloudWatch(fake, "Voxloop", logging.New(nil, "silent"))

	pub.Count("X", 1)
	pub.Flush() // must not panic or block

	// Buffer is cleared even on failure.
	pub.Flush()
	assert.Len(t, fake.calls, 1)
}
