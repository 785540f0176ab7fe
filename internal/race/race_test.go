package race

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ResultBeforeDeadline(t *testing.T) {
	err := Do(context.Background(), time.Second, "dig", func(context.Context) error { return nil })
	assert.NoError(t, err)

	boom := errors.New("cannot dig bedrock")
	err = Do(context.Background(), time.Second, "dig", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsTimeout(err))
}

func TestDo_DeadlineFirst(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	cancelled := make(chan struct{})
	err := Do(context.Background(), 20*time.Millisecond, "craft", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		<-release
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "craft timed out after 20ms", err.Error())

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "craft", te.Label)
	assert.Equal(t, 20*time.Millisecond, te.After)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("op context was not cancelled after timeout")
	}
}

func TestValue(t *testing.T) {
	v, err := Value(context.Background(), time.Second, "find", func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, time.Second, "equip", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_Panic(t *testing.T) {
	err := Do(context.Background(), time.Second, "place", func(context.Context) error { panic("nil block") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place panicked")
}

func TestDo_InvalidDeadline(t *testing.T) {
	called := false
	err := Do(context.Background(), 0, "dig", func(context.Context) error { called = true; return nil })
	assert.Error(t, err)
	assert.False(t, called)
}

func TestDo_NoGoroutineLeakOnSuccess(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		require.NoError(t, Do(context.Background(), time.Minute, "noop", func(context.Context) error { return nil }))
	}
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+2 }, time.Second, 10*time.Millisecond)
}
