package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no article exists for the requested id.
var ErrNotFound = errors.New("article not found")

// Store defines the storage interface for techstock's article table.
// Every write path runs Normalize before the record reaches the backend.
type Store interface {
	// EnsureSchema creates the table (or index) backing the store if it is
	// missing. Call once at process start.
	EnsureSchema(ctx context.Context) error

	Get(ctx context.Context, id string) (*Article, error)
	Put(ctx context.Context, article *Article) error
	Update(ctx context.Context, id string, patch Patch, now time.Time) (*Article, error)
	Delete(ctx context.Context, id string) (*Article, error)

	// Scan returns every article matching filter. The zero Filter matches all.
	Scan(ctx context.Context, filter Filter) ([]Article, error)
	// ScanIDs reads only the id of every stored article.
	ScanIDs(ctx context.Context) (map[string]struct{}, error)

	Close() error
}

// Article is a stored record.
type Article struct {
	ID             string    `dynamodbav:"id" bson:"id"`
	Title          string    `dynamodbav:"title" bson:"title"`
	URL            string    `dynamodbav:"url" bson:"url"`
	Tags           []string  `dynamodbav:"tags" bson:"tags"`
	Source         string    `dynamodbav:"source" bson:"source"`
	CreatedAt      time.Time `dynamodbav:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `dynamodbav:"updatedAt" bson:"updatedAt"`
	LowerCaseTitle string    `dynamodbav:"lower_case_title" bson:"lower_case_title"`
	LowerCaseTags  []string  `dynamodbav:"lower_case_tags" bson:"lower_case_tags"`
}

// Normalize recomputes the derived lowercase fields from Title and Tags.
func Normalize(a *Article) {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.LowerCaseTitle = strings.ToLower(a.Title)
	a.LowerCaseTags = LowerAll(a.Tags)
}

// LowerAll returns a lowercased copy of tags. The result is never nil.
func LowerAll(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	return out
}

// Patch lists the fields of a partial update. Nil fields are left untouched.
type Patch struct {
	Title  *string
	URL    *string
	Tags   *[]string
	Source *string
}

// Empty reports whether the patch carries no field to change.
func (p Patch) Empty() bool {
	return p.Title == nil && p.URL == nil && p.Tags == nil && p.Source == nil
}

// Apply copies the patch onto a, bumps UpdatedAt and re-derives the
// lowercase fields.
func (p Patch) Apply(a *Article, now time.Time) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.URL != nil {
		a.URL = *p.URL
	}
	if p.Tags != nil {
		a.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Source != nil {
		a.Source = *p.Source
	}
	a.UpdatedAt = now
	Normalize(a)
}

// Filter holds scan predicates. Both values must already be lowercased;
// empty values are ignored and set predicates are combined with AND.
type Filter struct {
	TitlePrefix string // lower_case_title begins with
	Tag         string // lower_case_tags has an element equal to
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*DynamoStore)(nil)
	_ Store = (*MongoStore)(nil)
)

// Open connects to the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Store.Driver {
	case "", DriverSQLite:
		s, err := NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverDynamoDB:
		s, err := NewDynamoStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMongo:
		s, err := NewMongoStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
