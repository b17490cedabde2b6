package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type counter struct{ n atomic.Int32 }

func (c *counter) Execute(context.Context) error         { c.n.Add(1); return nil }
func (c *counter) Reconcile(context.Context) error       { c.n.Add(1); return nil }
func (c *counter) ScanWatchFolder(context.Context) error { c.n.Add(1); return nil }
func (c *counter) Schedule(context.Context) error        { c.n.Add(1); return nil }

func TestLoops_UsesConfiguredIntervals(t *testing.T) {
	var cfg config.Config
	cfg.Schedule.StatusInterval = time.Minute
	cfg.Schedule.ExternalHostInterval = 5 * time.Minute
	cfg.Schedule.WatchInterval = 30 * time.Second
	cfg.Schedule.RetranscodeInterval = 10 * time.Minute
	c := &counter{}

	loops := Loops(cfg, c, c, c, c)

	require.Len(t, loops, 4)
	got := map[string]time.Duration{}
	for _, l := range loops {
		got[l.Name] = l.Interval
		require.NoError(t, l.Run(context.Background()))
	}
	assert.Equal(t, map[string]time.Duration{
		"status_reconcile":        time.Minute,
		"external_host_reconcile": 5 * time.Minute,
		"watch_scan":              30 * time.Second,
		"retranscode_schedule":    10 * time.Minute,
	}, got)
	assert.EqualValues(t, 4, c.n.Load())
}

func TestRunOnce_ReturnsLoopError(t *testing.T) {
	boom := errors.New("boom")
	err := RunOnce(context.Background(), Loop{Name: "x", Run: func(context.Context) error { return boom }}, logger.NewNop())
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_OverlappingTicksAreSkipped(t *testing.T) {
	var (
		running atomic.Int32
		maxSeen atomic.Int32
		passes  atomic.Int32
	)
	slow := Loop{Name: "slow", Interval: time.Second, Run: func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		passes.Add(1)
		select {
		case <-time.After(2500 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}}

	s, err := New([]Loop{slow, {Name: "off", Interval: 0}}, logger.NewNop())
	require.NoError(t, err)
	s.Start()
	time.Sleep(3500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.EqualValues(t, 1, maxSeen.Load())
	assert.GreaterOrEqual(t, passes.Load(), int32(1))
}
