// Package metrics publishes latency and counter metrics for turn
// processing. The Lambda deployment ships them to CloudWatch; local modes
// use the no-op publisher.
package metrics

import "time"

// Publisher records operational metrics. Implementations must be safe for
// use from a single invocation goroutine; Flush ships anything buffered.
type Publisher interface {
	Latency(name string, d time.Duration)
	Count(name string, n float64)
	Flush()
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) Latency(name string, d time.Duration) {}
func (Nop) Count(name string, n float64)         {}
func (Nop) Flush()                               {}
