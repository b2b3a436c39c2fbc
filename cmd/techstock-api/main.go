package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/techstock"
	"github.com/matthewjhunter/techstock/internal/storage"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "techstock-api: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	engine, err := techstock.NewEngine(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "techstock-api: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(engine, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // POST /fetch-qiita walks several pages
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("techstock-api: listening on %s (store %s)", cfg.Server.Addr, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("techstock-api: %v", err)
		}
	}()

	<-done
	log.Println("techstock-api: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("techstock-api: shutdown error: %v", err)
	}
	log.Println("techstock-api: stopped")
}
