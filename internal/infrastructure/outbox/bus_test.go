package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/corbyn-jpg/vinoir-orders/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var delivered atomic.Int32
	bus.Subscribe("order.placed", func(_ context.Context, e domoutbox.Event) error {
		assert.Equal(t, "order.placed", e.EventName())
		delivered.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))

	require.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBusPublishAfterStopIsSafe(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	assert.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))
}

func TestBusConcurrentPublishDuringStop(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = bus.Publish(context.Background(), testEvent{name: "order.placed"})
			}
		}()
	}
	bus.Stop(context.Background())
	wg.Wait()
}

func TestBusRecoversFromHandlerPanic(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var delivered atomic.Int32
	bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
		panic("handler exploded")
	})
	bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
		delivered.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))

	require.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, time.Second, 10*time.Millisecond)
}
