package monitoring

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
)

func TestSetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	l, hook := test.NewNullLogger()
	SetLogger(l)
	Logger().Info("hello")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "hello", hook.LastEntry().Message)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logger().Info("muted") })
}

func TestSetLevel(t *testing.T) {
	original := Logger()
	defer SetLogger(original)
	SetLogger(nil)

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, Logger().GetLevel())
	assert.Error(t, SetLevel("loud"))
}

func TestAddOutput(t *testing.T) {
	original := Logger()
	defer SetLogger(original)
	SetLogger(nil)

	var buf bytes.Buffer
	AddOutput(&buf)
	Logger().Info("to the console")
	assert.True(t, strings.Contains(buf.String(), "to the console"))
}

func TestHalt_RepeatsUntilCancelled(t *testing.T) {
	l, hook := test.NewNullLogger()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Halt(ctx, l, errors.New("arena overflow"), time.Second, clock)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(hook.AllEntries()) >= 1 }, time.Second, time.Millisecond)
	// Each second of mock time repeats the diagnostic; nothing happens in between.
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return len(hook.AllEntries()) >= 3
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "arena overflow", hook.LastEntry().Data[logrus.ErrorKey].(error).Error())
}

func TestHalt_WaitsForClock(t *testing.T) {
	l, hook := test.NewNullLogger()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Halt(ctx, l, errors.New("version mismatch"), time.Hour, clock)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(hook.AllEntries()) == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	cancel()
	<-done
	assert.Len(t, hook.AllEntries(), 1, "no repeat before the interval elapses")
}
