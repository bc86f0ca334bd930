package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/voxloop/voxloop/internal/logging"
)

// CloudWatchAPI is the slice of the CloudWatch client the publisher needs.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// putMetricDataMax is the API's per-call datum limit.
const putMetricDataMax = 20

// CloudWatch buffers metric data during an invocation and ships it on
// Flush, keeping metric calls off the turn's latency-critical path.
// Publish failures are logged and dropped; metrics are never worth
// failing a call over.
type CloudWatch struct {
	client    CloudWatchAPI
	namespace string
	log       *logging.Logger

	mu  sync.Mutex
	buf []types.MetricDatum
}

// NewCloudWatch creates a publisher for the given namespace.
func NewCloudWatch(client CloudWatchAPI, namespace string, log *logging.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		log:       log.Sub("metrics"),
	}
}

func (c *CloudWatch) Latency(name string, d time.Duration) {
	c.add(types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       types.StandardUnitMilliseconds,
		Timestamp:  aws.Time(time.Now()),
	})
}

func (c *CloudWatch) Count(name string, n float64) {
	c.add(types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(n),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
	})
}

func (c *CloudWatch) add(d types.MetricDatum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, d)
}

// Flush ships buffered data. Called once at the end of each invocation,
// with its own short deadline so a slow metrics endpoint cannot eat into
// the next turn.
func (c *CloudWatch) Flush() {
	c.mu.Lock()
	buf := c.buf
	c.buf = nil
	c.mu.Unlock()

	if len(buf) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for start := 0; start < len(buf); start += putMetricDataMax {
		end := min(start+putMetricDataMax, len(buf))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: buf[start:end],
		})
		if err != nil {
			c.log.Warn().Err(err).Int("dropped", len(buf)-start).Msg("failed to publish metrics")
			return
		}
	}
}
