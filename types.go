package techstock

import (
	"encoding/json"
	"time"
)

// Article is a bookmarked article as returned to API clients.
type Article struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Tags           []string  `json:"tags"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LowerCaseTitle string    `json:"lower_case_title"`
	LowerCaseTags  []string  `json:"lower_case_tags"`
}

// timestampLayout always writes three fractional digits, e.g.
// 2024-03-01T12:00:00.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MarshalJSON writes the timestamps in UTC with millisecond precision.
func (a Article) MarshalJSON() ([]byte, error) {
	type plain Article
	return json.Marshal(struct {
		plain
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{
		plain:     plain(a),
		CreatedAt: a.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt: a.UpdatedAt.UTC().Format(timestampLayout),
	})
}

// ArticleInput is the body of a create request. Every content field must be
// present; empty strings and an empty tag list are accepted. The server
// assigns id and timestamps, so supplying any of them is an error.
type ArticleInput struct {
	Title  *string   `json:"title" validate:"required"`
	URL    *string   `json:"url" validate:"required"`
	Tags   *[]string `json:"tags" validate:"required"`
	Source *string   `json:"source" validate:"required"`

	ID        json.RawMessage `json:"id,omitempty" validate:"isdefault"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty" validate:"isdefault"`
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty" validate:"isdefault"`
}

// ArticlePatch is the body of an update request. Absent fields are left as
// they are.
type ArticlePatch struct {
	Title  *string   `json:"title,omitempty"`
	URL    *string   `json:"url,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
	Source *string   `json:"source,omitempty"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Total int `json:"total"`
	New   int `json:"new"`
	Saved int `json:"saved"`
}

// DeleteResult is the body returned after a delete.
type DeleteResult struct {
	Message        string  `json:"message"`
	DeletedArticle Article `json:"deletedArticle"`
}

// Event is a scheduled trigger payload.
type Event struct {
	Source string `json:"source"`
	Action string `json:"action"`
}

// Scheduled trigger discriminator values.
const (
	EventSourceScheduler  = "eventbridge"
	EventActionFetchQiita = "fetchQiita"
)

// TriggerResponse is the structured result of HandleEvent.
type TriggerResponse struct {
	StatusCode int           `json:"statusCode"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Data       *ImportResult `json:"data,omitempty"`
}
