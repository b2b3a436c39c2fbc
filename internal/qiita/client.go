// Package qiita reads a user's stocked items from the Qiita v2 API.
package qiita

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matthewjhunter/techstock/internal/metrics"
	"github.com/matthewjhunter/techstock/internal/storage"
)

// SourceName is the source label stored on imported articles.
const SourceName = "Qiita"

// Item is the subset of a Qiita item the importer keeps.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Tags  []Tag  `json:"tags"`
}

type Tag struct {
	Name string `json:"name"`
}

// TagNames flattens the item's tags to their names.
func (it Item) TagNames() []string {
	names := make([]string, len(it.Tags))
	for i, t := range it.Tags {
		names[i] = t.Name
	}
	return names
}

// State is the position of a stock fetch in its pagination loop.
type State int

const (
	StateFetching State = iota
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stop reasons recorded in FetchReport.StopReason.
const (
	StopShortPage = "short page"
	StopEmptyPage = "empty page"
	StopRateLimit = "rate limit"
	StopPageLimit = "page limit"
	StopCancelled = "cancelled"
)

// FetchReport describes one pagination run.
type FetchReport struct {
	Items        []Item
	PagesFetched int
	PagesSkipped int
	State        State
	StopReason   string
}

// Options configures a Client. Zero values fall back to the defaults noted on
// each field.
type Options struct {
	BaseURL            string
	UserID             string
	AccessToken        string        // optional bearer token
	PerPage            int           // default 20
	MaxPages           int           // default 5
	Timeout            time.Duration // per page, default 5s
	RateLimitThreshold int           // default 10
	HTTPClient         *http.Client
}

// Client fetches stock pages.
type Client struct {
	opts Options
	http *http.Client
}

// New builds a client from opts.
func New(opts Options) *Client {
	if opts.PerPage <= 0 {
		opts.PerPage = 20
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RateLimitThreshold <= 0 {
		opts.RateLimitThreshold = 10
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{opts: opts, http: hc}
}

// NewFromConfig builds a client from the qiita section of cfg.
func NewFromConfig(cfg *storage.Config) *Client {
	return New(Options{
		BaseURL:            cfg.Qiita.BaseURL,
		UserID:             cfg.Qiita.UserID,
		AccessToken:        cfg.Qiita.AccessToken,
		PerPage:            cfg.Qiita.PerPage,
		MaxPages:           cfg.Qiita.MaxPages,
		Timeout:            cfg.Qiita.Timeout,
		RateLimitThreshold: cfg.Qiita.RateLimitThreshold,
	})
}

func (c *Client) Name() string { return SourceName }

// page is the outcome of one page request.
type page struct {
	items     []Item
	notArray  bool
	remaining int // -1 when the header is absent or malformed
}

// FetchStocks walks the stock pages until a stop condition is met. A page
// that fails or times out is skipped and the walk moves on. Cancelling ctx
// aborts the walk; the report then holds the pages read so far and the
// context error is returned.
func (c *Client) FetchStocks(ctx context.Context) (*FetchReport, error) {
	if c.opts.UserID == "" {
		return nil, errors.New("qiita user id is not configured")
	}

	report := &FetchReport{Items: []Item{}, State: StateFetching}
	for pageNum := 1; report.State == StateFetching; pageNum++ {
		if err := ctx.Err(); err != nil {
			report.State, report.StopReason = StateAborted, StopCancelled
			return report, err
		}
		if pageNum > c.opts.MaxPages {
			report.State, report.StopReason = StateDone, StopPageLimit
			break
		}

		p, err := c.fetchPage(ctx, pageNum)
		if err != nil {
			if ctx.Err() != nil {
				report.State, report.StopReason = StateAborted, StopCancelled
				return report, ctx.Err()
			}
			log.Printf("qiita: page %d skipped: %v", pageNum, err)
			metrics.QiitaPagesTotal.WithLabelValues("skipped").Inc()
			report.PagesSkipped++
			continue
		}
		report.PagesFetched++
		metrics.QiitaPagesTotal.WithLabelValues("fetched").Inc()

		switch {
		case p.notArray || len(p.items) == 0:
			report.State, report.StopReason = StateDone, StopEmptyPage
		default:
			report.Items = append(report.Items, p.items...)
			if len(p.items) < c.opts.PerPage {
				report.State, report.StopReason = StateDone, StopShortPage
			}
		}

		if p.remaining >= 0 && p.remaining < c.opts.RateLimitThreshold {
			if report.State == StateFetching {
				report.State, report.StopReason = StateDone, StopRateLimit
			}
			log.Printf("qiita: rate limit remaining %d below %d, stopping", p.remaining, c.opts.RateLimitThreshold)
		}
	}

	log.Printf("qiita: fetched %d items in %d pages (%d skipped): %s",
		len(report.Items), report.PagesFetched, report.PagesSkipped, report.StopReason)
	return report, nil
}

func (c *Client) pageURL(pageNum int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("per_page", strconv.Itoa(c.opts.PerPage))
	return fmt.Sprintf("%s/users/%s/stocks?%s", c.opts.BaseURL, url.PathEscape(c.opts.UserID), q.Encode())
}

func (c *Client) fetchPage(ctx context.Context, pageNum int) (*page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(pageNum), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	limit := resp.Header.Get("Rate-Limit")
	remainingHeader := resp.Header.Get("Rate-Limit-Remaining")
	log.Printf("qiita: page %d status %d, rate limit %s, remaining %s", pageNum, resp.StatusCode, limit, remainingHeader)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("page %d: response is not JSON", pageNum)
	}

	p := &page{remaining: -1}
	if n, err := strconv.Atoi(remainingHeader); err == nil {
		p.remaining = n
		metrics.QiitaRateLimitRemaining.Set(float64(n))
	}

	// Anything other than an array, error objects included, ends the walk.
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '[' {
		p.notArray = true
		return p, nil
	}
	if err := json.Unmarshal(body, &p.items); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return p, nil
}

// Fetch runs FetchStocks and flattens the items to articles labelled
// SourceName. Timestamps are left for the caller to stamp.
func (c *Client) Fetch(ctx context.Context) ([]storage.Article, error) {
	report, err := c.FetchStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch qiita stocks: %w", err)
	}

	articles := make([]storage.Article, 0, len(report.Items))
	for _, it := range report.Items {
		articles = append(articles, storage.Article{
			ID:     it.ID,
			Title:  it.Title,
			URL:    it.URL,
			Tags:   it.TagNames(),
			Source: SourceName,
		})
	}
	return articles, nil
}
