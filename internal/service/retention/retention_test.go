package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashita-ai/haken/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.DiscardHandler)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	batches []int
	counts  storage.PurgeCount
	err     error
	calls   chan struct{}
}

func newFakePurger() *fakePurger {
	return &fakePurger{calls: make(chan struct{}, 16)}
}

func (f *fakePurger) PurgeExpired(_ context.Context, before time.Time, batchSize int) (storage.PurgeCount, error) {
	f.mu.Lock()
	f.cutoffs = append(f.cutoffs, before)
	f.batches = append(f.batches, batchSize)
	f.mu.Unlock()
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return f.counts, f.err
}

func TestRunOnce_CutoffIsNowMinusMaxAge(t *testing.T) {
	p := newFakePurger()
	p.counts = storage.PurgeCount{SelectionLogs: 7, TaskMetadata: 2}
	w := New(p, discard, Config{MaxAge: 30 * 24 * time.Hour, BatchSize: 500})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	counts, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.counts, counts)

	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC), p.cutoffs[0])
	assert.Equal(t, []int{500}, p.batches)
}

func TestRunOnce_ReturnsPartialCountsWithError(t *testing.T) {
	p := newFakePurger()
	p.counts = storage.PurgeCount{SelectionLogs: 3}
	p.err = errors.New("connection reset")
	w := New(p, discard, Config{MaxAge: time.Hour})

	counts, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(3), counts.SelectionLogs)
}

func TestWorker_SweepsOnInterval(t *testing.T) {
	p := newFakePurger()
	w := New(p, discard, Config{MaxAge: time.Hour, Interval: 5 * time.Millisecond})

	w.Start(context.Background())
	for range 2 {
		select {
		case <-p.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("worker never swept")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

func TestWorker_KeepsRunningAfterFailure(t *testing.T) {
	p := newFakePurger()
	p.err = errors.New("boom")
	w := New(p, discard, Config{MaxAge: time.Hour, Interval: 5 * time.Millisecond})

	w.Start(context.Background())
	for range 3 {
		select {
		case <-p.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after a failed sweep")
		}
	}
	w.Stop(context.Background())
}

func TestWorker_StartTwiceAndStopWithoutStart(t *testing.T) {
	w := New(newFakePurger(), discard, Config{MaxAge: time.Hour, Interval: time.Hour})
	w.Stop(context.Background())

	w.Start(context.Background())
	w.Start(context.Background())
	w.Stop(context.Background())
}

func TestNew_DefaultsInterval(t *testing.T) {
	w := New(newFakePurger(), discard, Config{MaxAge: time.Hour})
	assert.Equal(t, time.Hour, w.cfg.Interval)
}
