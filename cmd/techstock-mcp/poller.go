package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/matthewjhunter/techstock"
)

// poller runs the Qiita import in the background on a fixed interval.
type poller struct {
	engine   *techstock.Engine
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *techstock.Engine, interval time.Duration) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	log.Printf("poller: started (interval=%s)", p.interval)
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	log.Printf("poller: stopped")
}

// poll runs a single import. Runs never overlap, so the qiita_import tool
// waits for a background cycle in progress.
func (p *poller) poll(ctx context.Context) (*techstock.ImportResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.ImportQiita(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("poller: %d fetched, %d new, %d saved", result.Total, result.New, result.Saved)
	return result, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		log.Printf("poller: initial poll error: %v", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				log.Printf("poller: poll error: %v", err)
			}
		}
	}
}
