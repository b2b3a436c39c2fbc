// Package importer copies articles from an external source into the store,
// writing only ids the store does not hold yet.
package importer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matthewjhunter/techstock/internal/metrics"
	"github.com/matthewjhunter/techstock/internal/storage"
)

// Source yields candidate articles. Implementations set ID, Title, URL, Tags
// and Source; the importer stamps the timestamps.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]storage.Article, error)
}

// Result summarizes one run.
type Result struct {
	Total int `json:"total"`
	New   int `json:"new"`
	Saved int `json:"saved"`
}

type Options struct {
	BatchSize  int           // writes in flight at once, default 5
	BatchPause time.Duration // wait after each batch before the next one starts
	Now        func() time.Time
}

type Importer struct {
	store storage.Store
	opts  Options
}

func New(store storage.Store, opts Options) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Importer{store: store, opts: opts}
}

// Run fetches from src, drops ids already stored (and repeats within the
// fetched set), and writes the rest in sequential batches. Writes inside a
// batch run concurrently. A failed write is logged and not counted in
// Saved. Writes are detached from ctx cancellation; cancelling ctx only stops
// further batches from starting.
func (im *Importer) Run(ctx context.Context, src Source) (*Result, error) {
	articles, err := src.Fetch(ctx)
	if err != nil {
		metrics.RecordImportError(src.Name())
		return nil, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}

	existing, err := im.store.ScanIDs(ctx)
	if err != nil {
		metrics.RecordImportError(src.Name())
		return nil, fmt.Errorf("scan existing ids: %w", err)
	}

	fresh := make([]storage.Article, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		if _, ok := existing[a.ID]; ok {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		fresh = append(fresh, a)
	}

	result := &Result{Total: len(articles), New: len(fresh)}
	log.Printf("importer: %s returned %d articles, %d new", src.Name(), result.Total, result.New)

	now := im.opts.Now().UTC()
	for i := range fresh {
		im.prepare(&fresh[i], src.Name(), now)
	}

	writeCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(fresh); start += im.opts.BatchSize {
		if err := im.pause(ctx, start); err != nil {
			log.Printf("importer: stopping before batch at %d: %v", start, err)
			break
		}
		end := min(start+im.opts.BatchSize, len(fresh))
		saved := im.writeBatch(writeCtx, fresh[start:end])
		result.Saved += saved
		log.Printf("importer: batch %d-%d saved %d/%d (total %d/%d)",
			start+1, end, saved, end-start, result.Saved, result.New)
	}

	metrics.RecordImport(src.Name(), result.Total, result.New, result.Saved)
	return result, nil
}

// writeBatch puts every article concurrently and returns how many succeeded.
func (im *Importer) writeBatch(ctx context.Context, batch []storage.Article) int {
	var (
		g     errgroup.Group
		saved atomic.Int64
	)
	for i := range batch {
		a := &batch[i]
		g.Go(func() error {
			if err := im.store.Put(ctx, a); err != nil {
				log.Printf("importer: failed to save %s: %v", a.ID, err)
				return nil
			}
			saved.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(saved.Load())
}

func (im *Importer) prepare(a *storage.Article, source string, now time.Time) {
	if a.Source == "" {
		a.Source = source
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.CreatedAt = now
	a.UpdatedAt = now
}

// pause waits BatchPause before every batch but the first. It returns early
// with ctx's error once ctx is done.
func (im *Importer) pause(ctx context.Context, start int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if start == 0 || im.opts.BatchPause <= 0 {
		return nil
	}

	timer := time.NewTimer(im.opts.BatchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
