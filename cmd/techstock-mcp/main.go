// techstock-mcp is a standalone MCP server for the techstock article store.
// It opens the configured store directly and serves article and import tools
// over stdio.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/techstock"
	"github.com/matthewjhunter/techstock/internal/storage"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path")
	poll := flag.Duration("poll", 0, "run the Qiita import in the background at this interval (0 disables)")
	flag.Parse()

	// stdout carries the protocol.
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine, err := techstock.NewEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("create techstock engine: %v", err)
	}
	defer engine.Close()

	srv := newServer(engine)
	if *poll > 0 {
		srv.poller = newPoller(engine, max(*poll, time.Minute))
		srv.poller.start(ctx)
		defer srv.poller.stop()
	}

	if err := srv.run(ctx); err != nil {
		log.Printf("server error: %v", err)
	}
}
