package eventqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/lob-engine/internal/orders"
)

func TestPushTryPopFIFO(t *testing.T) {
	q := New()
	q.Push(&orders.ClientRequest{Order: orders.Order{OrderId: 1}})
	q.Push(&orders.ClientRequest{Order: orders.Order{OrderId: 2}})

	req, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, orders.OrderId(1), req.Order.OrderId)

	req, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, orders.OrderId(2), req.Order.OrderId)

	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestWaitPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan *orders.ClientRequest, 1)
	go func() {
		req, ok := q.WaitPop()
		if ok {
			done <- req
		} else {
			done <- nil
		}
	}()

	time.Sleep(20 * time.Millisecond) // let WaitPop block first
	q.Push(&orders.ClientRequest{Order: orders.Order{OrderId: 99}})

	select {
	case req := <-done:
		require.NotNil(t, req)
		assert.Equal(t, orders.OrderId(99), req.Order.OrderId)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitPop never returned after Push")
	}
}

func TestShutdownUnblocksWaitersAfterDraining(t *testing.T) {
	q := New()
	q.Push(&orders.ClientRequest{Order: orders.Order{OrderId: 1}})
	q.Shutdown()

	// The one queued item must still be delivered before WaitPop reports
	// shutdown-empty.
	req, ok := q.WaitPop()
	require.True(t, ok)
	assert.Equal(t, orders.OrderId(1), req.Order.OrderId)

	_, ok = q.WaitPop()
	assert.False(t, ok)
}

func TestShutdownWakesBlockedWaiter(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	wg.Add(1)
	result := make(chan bool, 1)
	go func() {
		defer wg.Done()
		_, ok := q.WaitPop()
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()
	wg.Wait()
	assert.False(t, <-result)
}

func TestPushNeverDropsUnderConcurrentProducers(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(&orders.ClientRequest{Order: orders.Order{OrderId: orders.OrderId(p*perProducer + i)}})
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Len())
}
