package storage

// Schema is the SQLite layout of the article table. Tag lists are stored as
// JSON arrays so tag predicates can use json_each. Timestamps are RFC 3339
// text in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    lower_case_title TEXT NOT NULL,
    lower_case_tags TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_articles_lower_case_title ON articles(lower_case_title);
`
