package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded backend. It is the default driver and the one
// the test suites run against.
type SQLiteStore struct {
	db *sql.DB
}

const articleColumns = `id, title, url, tags, source, created_at, updated_at, lower_case_title, lower_case_tags`

// NewSQLiteStore opens (or creates) the database file at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; concurrent importer batches would
	// otherwise race for the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var (
		a                Article
		tags, lowerTags  string
		created, updated string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.URL, &tags, &a.Source,
		&created, &updated, &a.LowerCaseTitle, &lowerTags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(lowerTags), &a.LowerCaseTags); err != nil {
		return nil, fmt.Errorf("failed to decode lower_case_tags of %s: %w", a.ID, err)
	}
	var err error
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at of %s: %w", a.ID, err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at of %s: %w", a.ID, err)
	}
	return &a, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Article, error) {
	return s.get(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, id string) (*Article, error) {
	row := q.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

// Put inserts the article or overwrites the row with the same id.
func (s *SQLiteStore) Put(ctx context.Context, article *Article) error {
	Normalize(article)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   url = excluded.url,
		   tags = excluded.tags,
		   source = excluded.source,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at,
		   lower_case_title = excluded.lower_case_title,
		   lower_case_tags = excluded.lower_case_tags`,
		article.ID, article.Title, article.URL, encodeTags(article.Tags), article.Source,
		formatTime(article.CreatedAt), formatTime(article.UpdatedAt),
		article.LowerCaseTitle, encodeTags(article.LowerCaseTags),
	)
	if err != nil {
		return fmt.Errorf("failed to put article: %w", err)
	}
	return nil
}

// Update applies patch to the stored row and returns the row as written.
// Only the columns named by the patch (and their derived columns) change.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (*Article, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(current, now)

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(current.UpdatedAt)}
	if patch.Title != nil {
		sets = append(sets, "title = ?", "lower_case_title = ?")
		args = append(args, current.Title, current.LowerCaseTitle)
	}
	if patch.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, current.URL)
	}
	if patch.Tags != nil {
		sets = append(sets, "tags = ?", "lower_case_tags = ?")
		args = append(args, encodeTags(current.Tags), encodeTags(current.LowerCaseTags))
	}
	if patch.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, current.Source)
	}
	args = append(args, id)

	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}

	updated, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return updated, nil
}

// Delete removes the row and returns it as it was before removal.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (*Article, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return old, nil
}

// Scan returns matching rows in insertion order.
func (s *SQLiteStore) Scan(ctx context.Context, filter Filter) ([]Article, error) {
	var (
		where []string
		args  []any
	)
	if filter.TitlePrefix != "" {
		where = append(where, "substr(lower_case_title, 1, length(?)) = ?")
		args = append(args, filter.TitlePrefix, filter.TitlePrefix)
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(lower_case_tags) WHERE value = ?)")
		args = append(args, filter.Tag)
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func (s *SQLiteStore) ScanIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM articles`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan article ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
