package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shootday/internal/monitor"
	"shootday/internal/queue"
)

type countingMonitor struct {
	mu       sync.Mutex
	prewarms int
	feeds    int
}

func (m *countingMonitor) Prewarm(context.Context, time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prewarms++
	return 3, nil
}

func (m *countingMonitor) Feed(context.Context, time.Time) ([]monitor.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds++
	return nil, nil
}

func (m *countingMonitor) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prewarms, m.feeds
}

func TestHandle(t *testing.T) {
	mon := &countingMonitor{}
	w := New(mon, queue.NewInMemory(1), clock.NewMock(), 0, zap.NewNop())

	msg, err := queue.NewMessage(queue.TypePrewarm, queue.PrewarmJob{PhotographerID: 1, Date: "2026-05-09"})
	require.NoError(t, err)
	w.Handle(context.Background(), msg)
	w.Handle(context.Background(), queue.Message{ID: "x", Type: "unknown"})
	w.Handle(context.Background(), queue.Message{ID: "y", Type: queue.TypePrewarm, Body: []byte("{")})

	prewarms, feeds := mon.counts()
	assert.Equal(t, 1, prewarms)
	assert.Equal(t, 0, feeds)
}

func TestRunConsumesAndSweeps(t *testing.T) {
	mon := &countingMonitor{}
	q := queue.NewInMemory(4)
	mock := clock.NewMock()
	w := New(mon, q, mock, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	msg, err := queue.NewMessage(queue.TypePrewarm, queue.PrewarmJob{PhotographerID: 1, Date: "2026-05-09"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))
	require.Eventually(t, func() bool { p, _ := mon.counts(); return p == 1 }, time.Second, 5*time.Millisecond)

	// the ticker goroutine registers with the mock clock asynchronously
	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		_, f := mon.counts()
		return f >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
