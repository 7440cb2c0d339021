package logexec

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/ringbuf"
)

type fakeSink struct {
	mu     sync.Mutex
	frames map[orders.ClientId]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{frames: make(map[orders.ClientId]int)}
}

func (f *fakeSink) Send(clientID orders.ClientId, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[clientID]++
}

func (f *fakeSink) count(id orders.ClientId) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[id]
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *ringbuf.Ring[orders.ExecutionReport], *ringbuf.Ring[orders.Trade], *fakeSink, string) {
	t.Helper()
	dir := t.TempDir()
	execIn := ringbuf.New[orders.ExecutionReport](64)
	tradeIn := ringbuf.New[orders.Trade](64)
	sink := newFakeSink()
	d, err := New(execIn, tradeIn, sink, dir, 4, false)
	require.NoError(t, err)
	return d, execIn, tradeIn, sink, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestExecReportsFlowToEventsLogAndClientLogAndSink(t *testing.T) {
	d, execIn, _, sink, dir := newTestDispatcher(t)
	go d.RunExecReports()
	go d.RunTrades()

	execIn.TryPush(orders.ExecutionReport{ClientId: 5, OrderId: 1, Type: orders.ExecTypeNew})

	require.Eventually(t, func() bool {
		return sink.count(5) == 1
	}, 2*time.Second, 5*time.Millisecond)

	d.Shutdown()

	events := readFile(t, filepath.Join(dir, "processed_events"))
	assert.Contains(t, events, "order=1")

	clientLog := readFile(t, filepath.Join(dir, "execution_reports_client_5"))
	assert.Contains(t, clientLog, "order=1")
}

func TestTradesFlowToTradesLog(t *testing.T) {
	d, _, tradeIn, _, dir := newTestDispatcher(t)
	go d.RunExecReports()
	go d.RunTrades()

	tradeIn.TryPush(orders.Trade{MakerOrderId: 10, TakerOrderId: 20, Price: 100, Quantity: 5})

	time.Sleep(20 * time.Millisecond) // let both goroutines start running before Shutdown (New already counted them in d.done)
	d.Shutdown()

	trades := readFile(t, filepath.Join(dir, "processed_trades"))
	assert.Contains(t, trades, "maker=10")
	assert.Contains(t, trades, "taker=20")
}

func TestShutdownDrainsRingBeforeExiting(t *testing.T) {
	d, execIn, _, sink, _ := newTestDispatcher(t)
	for i := 0; i < 10; i++ {
		execIn.TryPush(orders.ExecutionReport{ClientId: 1, OrderId: orders.OrderId(i), Type: orders.ExecTypeNew})
	}

	go d.RunExecReports()
	go d.RunTrades()
	time.Sleep(20 * time.Millisecond) // let both goroutines start running before Shutdown (New already counted them in d.done)
	d.Shutdown()

	assert.Equal(t, 10, sink.count(1))
}

func TestSeparateClientsGetSeparateLogFiles(t *testing.T) {
	d, execIn, _, _, dir := newTestDispatcher(t)
	go d.RunExecReports()
	go d.RunTrades()

	execIn.TryPush(orders.ExecutionReport{ClientId: 1, OrderId: 1, Type: orders.ExecTypeNew})
	execIn.TryPush(orders.ExecutionReport{ClientId: 2, OrderId: 2, Type: orders.ExecTypeNew})

	require.Eventually(t, func() bool {
		_, err1 := os.Stat(filepath.Join(dir, "execution_reports_client_1"))
		_, err2 := os.Stat(filepath.Join(dir, "execution_reports_client_2"))
		return err1 == nil && err2 == nil
	}, 2*time.Second, 5*time.Millisecond)

	d.Shutdown()

	c1 := readFile(t, filepath.Join(dir, "execution_reports_client_1"))
	c2 := readFile(t, filepath.Join(dir, "execution_reports_client_2"))
	assert.True(t, strings.Contains(c1, "order=1"))
	assert.False(t, strings.Contains(c1, "order=2"))
	assert.True(t, strings.Contains(c2, "order=2"))
}

func TestRunIDIsStableAcrossCalls(t *testing.T) {
	d, _, _, _, _ := newTestDispatcher(t)
	id1 := d.RunID()
	id2 := d.RunID()
	assert.Equal(t, id1, id2)
}
