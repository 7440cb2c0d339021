// Command server runs the limit order book matching engine: it wires
// configuration, diagnostic logging, the TCP gateway, the single-threaded
// matching engine, and the logger/dispatcher together, then blocks until
// SIGINT/SIGTERM triggers an orderly shutdown.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rishav/lob-engine/internal/config"
	"github.com/rishav/lob-engine/internal/eventqueue"
	"github.com/rishav/lob-engine/internal/gateway"
	"github.com/rishav/lob-engine/internal/logexec"
	"github.com/rishav/lob-engine/internal/matching"
	"github.com/rishav/lob-engine/internal/orderbook"
	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/ringbuf"
	"github.com/rishav/lob-engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional; defaults are used if omitted)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log := telemetry.New(cfg)
	slog.SetDefault(log)

	book := orderbook.New(orders.Price(cfg.Book.PriceFloor), orders.Price(cfg.Book.PriceCeiling))
	queue := eventqueue.New()
	execRing := ringbuf.New[orders.ExecutionReport](cfg.Queues.ExecReportRingSize)
	tradeRing := ringbuf.New[orders.Trade](cfg.Queues.TradeRingSize)

	gw, err := gateway.New(cfg.Server.ListenAddr, queue, log)
	if err != nil {
		log.Error("failed to bind listener", "addr", cfg.Server.ListenAddr, "error", err)
		os.Exit(1)
	}

	dispatcher, err := logexec.New(execRing, tradeRing, gw, cfg.Logging.Dir, cfg.Queues.LogFlushHighWater, cfg.Logging.SyncOnWrite)
	if err != nil {
		log.Error("failed to start logger", "error", err)
		os.Exit(1)
	}

	engine := matching.New(book, queue, execRing, tradeRing, orders.Price(cfg.Book.PriceCeiling), steadyClock, log)

	// start_exchange / keep_running: each worker is started in the order it
	// depends on downstream consumers being ready -- the dispatcher must be
	// draining before the engine can emit, and the engine must be running
	// before the gateway accepts traffic that feeds it.
	go dispatcher.RunExecReports()
	go dispatcher.RunTrades()
	go engine.Run()
	go gw.Serve()

	log.Info("exchange started", "listen_addr", cfg.Server.ListenAddr, "run_id", dispatcher.RunID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	// Shutdown order mirrors startup in reverse: stop taking new work
	// first, then let the engine drain the backlog it already has and run
	// to completion before the dispatcher makes its final drain pass — the
	// join on engine.Done() is what keeps the last reports/trades the
	// engine emits from being torn down out from under it.
	gw.Shutdown()
	queue.Shutdown()
	<-engine.Done()
	dispatcher.Shutdown()
	log.Info("exchange stopped")
}

// processStart carries Go's monotonic clock reading, so time.Since below
// measures steady nanoseconds unaffected by wall-clock adjustments.
var processStart = time.Now()

func steadyClock() orders.TimeStamp {
	return orders.TimeStamp(time.Since(processStart).Nanoseconds())
}
