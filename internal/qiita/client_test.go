package qiita

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(prefix string, n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID:    fmt.Sprintf("%s-%02d", prefix, i),
			Title: fmt.Sprintf("Item %s %d", prefix, i),
			URL:   fmt.Sprintf("https://qiita.com/u/items/%s-%02d", prefix, i),
			Tags:  []Tag{{Name: "Go"}, {Name: "AWS"}},
		}
	}
	return items
}

// pagedServer serves pages[page-1] for each stocks request and counts hits.
func pagedServer(t *testing.T, pages map[int]any, remaining map[int]int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/users/alice/stocks", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("per_page"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Rate-Limit", "60")
		if n, ok := remaining[page]; ok {
			w.Header().Set("Rate-Limit-Remaining", strconv.Itoa(n))
		} else {
			w.Header().Set("Rate-Limit-Remaining", "59")
		}
		body, ok := pages[page]
		if !ok {
			body = []Item{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(baseURL string) *Client {
	return New(Options{BaseURL: baseURL, UserID: "alice", Timeout: time.Second})
}

func TestFetchStocksStopsOnShortPage(t *testing.T) {
	srv, hits := pagedServer(t, map[int]any{
		1: makeItems("p1", 20),
		2: makeItems("p2", 5),
		3: makeItems("p3", 20),
	}, nil)

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, StopShortPage, report.StopReason)
	assert.Len(t, report.Items, 25)
	assert.Equal(t, 2, report.PagesFetched)
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestFetchStocksStopsOnEmptyPage(t *testing.T) {
	srv, _ := pagedServer(t, map[int]any{1: makeItems("p1", 20)}, nil)

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopEmptyPage, report.StopReason)
	assert.Len(t, report.Items, 20)
	assert.Equal(t, 2, report.PagesFetched)
}

func TestFetchStocksStopsOnNonArray(t *testing.T) {
	srv, _ := pagedServer(t, map[int]any{
		1: map[string]string{"message": "Not found", "type": "not_found"},
	}, nil)

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, StopEmptyPage, report.StopReason)
	assert.Empty(t, report.Items)
}

func TestFetchStocksStopsOnRateLimit(t *testing.T) {
	srv, hits := pagedServer(t, map[int]any{
		1: makeItems("p1", 20),
		2: makeItems("p2", 20),
	}, map[int]int{1: 9})

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimit, report.StopReason)
	assert.Len(t, report.Items, 20, "items of the page reporting the low limit are kept")
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestFetchStocksPageCeiling(t *testing.T) {
	pages := map[int]any{}
	for p := 1; p <= 8; p++ {
		pages[p] = makeItems(fmt.Sprintf("p%d", p), 20)
	}
	srv, hits := pagedServer(t, pages, nil)

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopPageLimit, report.StopReason)
	assert.Len(t, report.Items, 100)
	assert.EqualValues(t, 5, atomic.LoadInt32(hits))
}

func TestFetchStocksSkipsTimedOutPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		json.NewEncoder(w).Encode(makeItems("p2", 3))
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, UserID: "alice", Timeout: 50 * time.Millisecond})
	report, err := client.FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.PagesSkipped)
	assert.Equal(t, 1, report.PagesFetched)
	assert.Len(t, report.Items, 3)
	assert.Equal(t, StopShortPage, report.StopReason)
}

func TestFetchStocksSkipsMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte("<html>bad gateway</html>"))
			return
		}
		json.NewEncoder(w).Encode(makeItems("p2", 1))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).FetchStocks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.PagesSkipped)
	assert.Len(t, report.Items, 1)
}

func TestFetchStocksCancelled(t *testing.T) {
	srv, _ := pagedServer(t, map[int]any{1: makeItems("p1", 20)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestClient(srv.URL).FetchStocks(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, report.State)
	assert.Equal(t, StopCancelled, report.StopReason)
}

func TestFetchStocksRequiresUser(t *testing.T) {
	_, err := New(Options{BaseURL: "http://unused"}).FetchStocks(context.Background())
	require.Error(t, err)
}

func TestFetchStocksSendsToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, UserID: "alice", AccessToken: "secret"})
	_, err := client.FetchStocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestFetchFlattensItems(t *testing.T) {
	srv, _ := pagedServer(t, map[int]any{1: makeItems("p1", 2)}, nil)

	articles, err := newTestClient(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 2)

	a := articles[0]
	assert.Equal(t, "p1-00", a.ID)
	assert.Equal(t, "Item p1 0", a.Title)
	assert.Equal(t, []string{"Go", "AWS"}, a.Tags)
	assert.Equal(t, SourceName, a.Source)
	assert.True(t, a.CreatedAt.IsZero())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "aborted", StateAborted.String())
}
