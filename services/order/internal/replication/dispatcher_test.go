package replication

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatcher_RunsTasksAndLogsErrors(t *testing.T) {
	out := &syncBuffer{}
	d := NewDispatcher(4, slog.New(slog.NewJSONHandler(out, nil)))

	var ran atomic.Int32
	require.True(t, d.Submit("ok", func(ctx context.Context) error { ran.Add(1); return nil }))
	require.True(t, d.Submit("bad", func(ctx context.Context) error { ran.Add(1); return errors.New("boom") }))
	require.True(t, d.Submit("panics", func(ctx context.Context) error { ran.Add(1); panic("oops") }))

	require.NoError(t, d.Close(context.Background()))
	assert.EqualValues(t, 3, ran.Load())

	logs := out.String()
	assert.Contains(t, logs, `"task":"bad"`)
	assert.Contains(t, logs, "boom")
	assert.Contains(t, logs, `"task":"panics"`)
	assert.NotContains(t, logs, `"task":"ok"`)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, quietLogger())
	release := make(chan struct{})

	require.True(t, d.Submit("blocker", func(ctx context.Context) error { <-release; return nil }))
	assert.False(t, d.Submit("overflow", func(ctx context.Context) error { return nil }))
	assert.EqualValues(t, 1, d.Dropped())

	close(release)
	require.NoError(t, d.Wait(context.Background()))
	assert.True(t, d.Submit("after", func(ctx context.Context) error { return nil }))
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(2, quietLogger())
	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Submit("late", func(ctx context.Context) error { return nil }))
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseAbandonsAfterDeadline(t *testing.T) {
	d := NewDispatcher(2, quietLogger())
	cancelled := make(chan struct{})
	require.True(t, d.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abandoned task was not cancelled")
	}
}
