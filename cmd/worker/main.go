package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/queue"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/setup"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	util.LoadEnv()

	var (
		indexFlag   = flag.Bool("index", false, "embed chunks missing from the vector store")
		reindexFlag = flag.Bool("reindex", false, "with -index: drop every stored vector first")
		clearFlag   = flag.Bool("clear", false, "delete the whole graph and reset the checkpoint")
		yesFlag     = flag.Bool("yes", false, "confirm -clear")
		statsFlag   = flag.Bool("stats", false, "print graph statistics and exit")
		listenFlag  = flag.Bool("listen", false, "run an ingestion pass for every message on the ingest queue")
		enqueueFlag = flag.Bool("enqueue", false, "publish an ingestion trigger and exit")
		sourcesFlag = flag.String("sources", "", "comma separated source directories to ingest (default all)")
	)
	flag.Parse()

	setup.Logger("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init("lexgraph-worker")
	defer shutdownTracing(context.Background())

	if addr := util.GetEnv("METRICS_ADDR"); addr != "" {
		go serveMetrics(addr)
	}

	msg := queue.IngestMessage{Reason: "cli", Sources: splitList(*sourcesFlag)}

	if *enqueueFlag {
		if err := enqueue(ctx, msg); err != nil {
			logger.Fatal("Failed to enqueue ingestion", "err", err)
		}
		logger.Info("Ingestion enqueued", "queue", queue.IngestQueue)
		return
	}

	w, err := newWorker(ctx)
	if err != nil {
		logger.Fatal("Failed to start worker", "err", err)
	}
	defer w.Close()

	switch {
	case *statsFlag:
		err = w.printStats(ctx)
	case *clearFlag:
		if !*yesFlag {
			logger.Fatal("Refusing to clear the graph without -yes")
		}
		err = w.clear(ctx)
	case *indexFlag:
		err = w.index(ctx, msg, *reindexFlag)
	case *listenFlag:
		err = w.listen(ctx)
	default:
		err = w.ingest(ctx, msg)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Shutdown signal received, exiting...")
			return
		}
		logger.Fatal("Worker failed", "err", err)
	}
}

func enqueue(ctx context.Context, msg queue.IngestMessage) error {
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.IngestQueue); err != nil {
		return err
	}
	msg.Reason = "enqueue"
	return queue.PublishIngest(ctx, ch, msg)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics listener stopped", "err", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
