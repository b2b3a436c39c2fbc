package techstock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/matthewjhunter/techstock/internal/feeds"
	"github.com/matthewjhunter/techstock/internal/importer"
	"github.com/matthewjhunter/techstock/internal/qiita"
	"github.com/matthewjhunter/techstock/internal/search"
	"github.com/matthewjhunter/techstock/internal/storage"
)

// Engine is the public API for techstock: article CRUD, search and imports.
// It wraps the store, the Qiita client, the feed fetcher and the importer.
type Engine struct {
	store    storage.Store
	searcher *search.Searcher
	importer *importer.Importer
	qiita    *qiita.Client
	fetcher  *feeds.Fetcher
	config   *storage.Config
	validate *validator.Validate
	now      func() time.Time
}

// NewEngine opens the store selected by cfg and makes sure its schema
// exists. A nil cfg uses storage.DefaultConfig.
func NewEngine(ctx context.Context, cfg *storage.Config) (*Engine, error) {
	if cfg == nil {
		cfg = storage.DefaultConfig()
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return NewEngineWithStore(store, cfg), nil
}

// NewEngineWithStore builds an engine around an already prepared store. The
// engine takes ownership of store and closes it in Close.
func NewEngineWithStore(store storage.Store, cfg *storage.Config) *Engine {
	if cfg == nil {
		cfg = storage.DefaultConfig()
	}
	e := &Engine{
		store:    store,
		searcher: search.New(store),
		qiita:    qiita.NewFromConfig(cfg),
		fetcher:  feeds.NewFetcher(),
		config:   cfg,
		validate: newValidator(),
	}
	e.now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	e.importer = importer.New(store, importer.Options{
		BatchSize:  cfg.Importer.BatchSize,
		BatchPause: cfg.Importer.BatchPause,
		Now:        func() time.Time { return e.now() },
	})
	return e
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *storage.Config {
	return e.config
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) validateInput(in ArticleInput) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate article: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		case "isdefault":
			fields[fe.Field()] = "is assigned by the server"
		default:
			fields[fe.Field()] = "failed " + fe.Tag()
		}
	}
	return &ValidationError{Message: "Invalid article", Fields: fields}
}

// CreateArticle validates in, assigns a new id and timestamps, stores the
// article and returns it as stored.
func (e *Engine) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	if err := e.validateInput(in); err != nil {
		return nil, err
	}

	now := e.now()
	a := &storage.Article{
		ID:        uuid.NewString(),
		Title:     *in.Title,
		URL:       *in.URL,
		Tags:      append([]string{}, (*in.Tags)...),
		Source:    *in.Source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Put(ctx, a); err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}

	out := articleFromInternal(*a)
	return &out, nil
}

// GetArticle returns the article with the given id or a *NotFoundError.
func (e *Engine) GetArticle(ctx context.Context, id string) (*Article, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	out := articleFromInternal(*a)
	return &out, nil
}

// ListArticles returns every stored article. The result is never nil.
func (e *Engine) ListArticles(ctx context.Context) ([]Article, error) {
	articles, err := e.store.Scan(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articlesFromInternal(articles), nil
}

// SearchArticles filters by case-insensitive title prefix and exact tag.
// Empty terms are ignored.
func (e *Engine) SearchArticles(ctx context.Context, title, tag string) ([]Article, error) {
	articles, err := e.searcher.Search(ctx, search.Query{Title: title, Tag: tag})
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(articles), nil
}

// UpdateArticle applies the fields present in patch. An empty patch is
// rejected with ErrNoFieldsToUpdate before the store is touched.
func (e *Engine) UpdateArticle(ctx context.Context, id string, patch ArticlePatch) (*Article, error) {
	p := storage.Patch{
		Title:  patch.Title,
		URL:    patch.URL,
		Tags:   patch.Tags,
		Source: patch.Source,
	}
	if p.Empty() {
		return nil, ErrNoFieldsToUpdate
	}

	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, notFound(err, id)
	}

	updated, err := e.store.Update(ctx, id, p, e.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("update article: %w", err)
	}
	out := articleFromInternal(*updated)
	return &out, nil
}

// DeleteArticle removes the article and returns it as it was.
func (e *Engine) DeleteArticle(ctx context.Context, id string) (*Article, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, notFound(err, id)
	}

	removed, err := e.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("delete article: %w", err)
	}
	out := articleFromInternal(*removed)
	return &out, nil
}

// ImportQiita runs one Qiita stock import.
func (e *Engine) ImportQiita(ctx context.Context) (*ImportResult, error) {
	return e.runImport(ctx, e.qiita)
}

// ImportFeed imports the items of one RSS/Atom feed.
func (e *Engine) ImportFeed(ctx context.Context, feedURL string) (*ImportResult, error) {
	return e.runImport(ctx, e.fetcher.Source(feedURL))
}

// ImportOPML imports every feed listed in an OPML file. A feed that fails is
// logged and skipped; the result sums the feeds that succeeded.
func (e *Engine) ImportOPML(ctx context.Context, opmlPath string) (*ImportResult, error) {
	urls, err := feeds.ReadOPML(opmlPath)
	if err != nil {
		return nil, err
	}

	total := &ImportResult{}
	for _, u := range urls {
		r, err := e.ImportFeed(ctx, u)
		if err != nil {
			log.Printf("techstock: feed %s skipped: %v", u, err)
			continue
		}
		total.Total += r.Total
		total.New += r.New
		total.Saved += r.Saved
	}
	return total, nil
}

func (e *Engine) runImport(ctx context.Context, src importer.Source) (*ImportResult, error) {
	r, err := e.importer.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Total: r.Total, New: r.New, Saved: r.Saved}, nil
}

// --- internal type conversion helpers ---

func articleFromInternal(a storage.Article) Article {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	lowerTags := a.LowerCaseTags
	if lowerTags == nil {
		lowerTags = []string{}
	}
	return Article{
		ID:             a.ID,
		Title:          a.Title,
		URL:            a.URL,
		Tags:           tags,
		Source:         a.Source,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		LowerCaseTitle: a.LowerCaseTitle,
		LowerCaseTags:  lowerTags,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = articleFromInternal(a)
	}
	return out
}
