// Package feeds turns RSS/Atom feeds into importable articles.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/matthewjhunter/techstock/internal/storage"
)

const userAgent = "techstock/1.0"

// titlePolicy drops every tag. Feed titles often carry inline HTML.
var titlePolicy = bluemonday.StrictPolicy()

type Fetcher struct {
	parser  *gofeed.Parser
	client  *http.Client
	timeout time.Duration
}

// OPML structures for parsing
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// NewFetcher creates a new feed fetcher
func NewFetcher() *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		parser:  parser,
		client:  &http.Client{},
		timeout: 30 * time.Second,
	}
}

// FetchFeed fetches and parses a single feed.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feedURL, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}
	return parsed, nil
}

// ArticleID derives a stable id for a feed item: a name-based UUID over the
// item's GUID, or its link when the GUID is missing.
func ArticleID(item *gofeed.Item) string {
	key := strings.TrimSpace(item.GUID)
	if key == "" {
		key = strings.TrimSpace(item.Link)
	}
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// PlainTitle strips the markup from a feed item title and returns the text.
func PlainTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(s)))
}

// ArticlesFromFeed maps feed items to articles. Titles lose their markup,
// item categories become tags and the feed title becomes the source label.
// Items with neither GUID nor link are skipped.
func ArticlesFromFeed(feed *gofeed.Feed) []storage.Article {
	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = "RSS"
	}

	articles := make([]storage.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := ArticleID(item)
		if id == "" {
			continue
		}
		tags := append([]string{}, item.Categories...)
		articles = append(articles, storage.Article{
			ID:     id,
			Title:  PlainTitle(item.Title),
			URL:    item.Link,
			Tags:   tags,
			Source: source,
		})
	}
	return articles
}

// Source adapts one feed URL to the importer.
type Source struct {
	fetcher *Fetcher
	url     string
}

func (f *Fetcher) Source(feedURL string) *Source {
	return &Source{fetcher: f, url: feedURL}
}

func (s *Source) Name() string { return s.url }

func (s *Source) Fetch(ctx context.Context) ([]storage.Article, error) {
	feed, err := s.fetcher.FetchFeed(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return ArticlesFromFeed(feed), nil
}

// ReadOPML returns the feed URLs listed in an OPML file, folders included,
// in document order.
func ReadOPML(opmlPath string) ([]string, error) {
	data, err := os.ReadFile(opmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}

	var opml OPML
	if err := xml.Unmarshal(data, &opml); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var urls []string
	seen := make(map[string]bool)
	var walk func(outlines []OPMLOutline)
	walk = func(outlines []OPMLOutline) {
		for _, outline := range outlines {
			if outline.XMLURL != "" && !seen[outline.XMLURL] {
				seen[outline.XMLURL] = true
				urls = append(urls, outline.XMLURL)
			}
			// Process nested outlines (folders)
			if len(outline.Outlines) > 0 {
				walk(outline.Outlines)
			}
		}
	}
	walk(opml.Body.Outlines)
	return urls, nil
}
