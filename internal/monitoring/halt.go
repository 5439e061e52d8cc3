package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
)

// Halt reports a fatal startup error forever, once per interval of clock, and
// never lets the caller proceed. It only returns when ctx is cancelled, which
// happens on shutdown or in tests. A nil clock uses real time.
func Halt(ctx context.Context, log logrus.FieldLogger, err error, interval time.Duration, clock timeutil.Clock) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	log.WithError(err).Error("fatal: device halted")
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(interval):
			log.WithError(err).Error("fatal: device halted, reset required")
		}
	}
}
