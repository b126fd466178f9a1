package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct{ name string }

func (e testEvent) Name() string { return e.name }

func TestBus_PublishReachesAllListeners(t *testing.T) {
	bus := New(zap.NewNop())
	var calls int32

	for i := 0; i < 3; i++ {
		bus.Subscribe("ping", func(ctx context.Context, event Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}
	bus.Subscribe("other", func(ctx context.Context, event Event) error {
		t.Error("listener of another event must not be called")
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "ping"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Wait(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBus_ListenerFailureDoesNotAffectOthers(t *testing.T) {
	bus := New(zap.NewNop())
	var ok int32

	bus.Subscribe("ping", func(ctx context.Context, event Event) error {
		return errors.New("boom")
	})
	bus.Subscribe("ping", func(ctx context.Context, event Event) error {
		panic("listener panic")
	})
	bus.Subscribe("ping", func(ctx context.Context, event Event) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "ping"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Wait(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
}

func TestBus_ListenerContextOutlivesCaller(t *testing.T) {
	bus := New(zap.NewNop(), WithHandlerTimeout(time.Second))
	errCh := make(chan error, 1)

	bus.Subscribe("ping", func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		errCh <- ctx.Err()
		return nil
	})

	callerCtx, cancel := context.WithCancel(context.Background())
	bus.Publish(callerCtx, testEvent{name: "ping"})
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}
