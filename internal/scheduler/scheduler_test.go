package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu        sync.Mutex
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type countingRefresher struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (r *countingRefresher) RefreshAll(ctx context.Context) error {
	r.calls.Add(1)
	_, ok := ctx.Deadline()
	r.deadline.Store(ok)
	return r.err
}

func TestScheduler_RunNow(t *testing.T) {
	refresher := &countingRefresher{}
	logger := &mockLogger{}
	s := NewScheduler(context.Background(), refresher, logger, time.Minute)

	s.RunNow()
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.True(t, refresher.deadline.Load(), "each run is bounded by a timeout")
	assert.Empty(t, logger.errorMsgs)

	refresher.err = errors.New("provider down")
	s.RunNow()
	assert.Len(t, logger.errorMsgs, 1)
}

func TestScheduler_RegisterInvalidSpec(t *testing.T) {
	s := NewScheduler(context.Background(), &countingRefresher{}, &mockLogger{}, 0)
	assert.Error(t, s.Register("not a cron spec"))
	assert.NoError(t, s.Register("30 22 * * 1-5"))
	assert.NoError(t, s.Register("@daily"))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	refresher := &countingRefresher{}
	s := NewScheduler(context.Background(), refresher, &mockLogger{}, time.Minute)
	require.NoError(t, s.Register("@every 1s"))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return refresher.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestPairs(t *testing.T) {
	fields := pairs([]interface{}{"entry", 3, "next", "soon", "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3, "next": "soon"}, fields)
}
