package classify

import "time"

// Stats are the core's running counters. Inference counts and latency move
// only when a cycle publishes a result.
type Stats struct {
	Inferences       uint64
	TotalLatency     time.Duration
	LastLatency      time.Duration
	CaptureFailures  uint64
	FormatMismatches uint64
	InvokeFailures   uint64
}

// AverageLatency is TotalLatency over Inferences, zero before the first.
func (s Stats) AverageLatency() time.Duration {
	if s.Inferences == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Inferences)
}
