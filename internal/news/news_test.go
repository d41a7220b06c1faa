package news

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketgateway/internal/news/newsapi"
	"marketgateway/internal/news/store"
)

type fakeFeed struct {
	calls    int
	articles []newsapi.Article
	total    int
	err      error
}

func (f *fakeFeed) TopHeadlines(_ context.Context, _, _ int) ([]newsapi.Article, int, error) {
	f.calls++
	return f.articles, f.total, f.err
}

// failingStore wraps a Memory store and fails Insert for a chosen url.
type failingStore struct {
	*store.Memory
	failURL string
}

func (f *failingStore) Insert(ctx context.Context, a store.Article) (*store.Article, error) {
	if a.URL == f.failURL {
		return nil, errors.New("storage unavailable")
	}
	return f.Memory.Insert(ctx, a)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedArticle(title, url string, published *time.Time) newsapi.Article {
	id := "src"
	return newsapi.Article{
		Source:      newsapi.Source{ID: &id, Name: "Source"},
		Title:       title,
		URL:         url,
		PublishedAt: published,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestGetNews_PersistsNewArticles(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	feed := &fakeFeed{
		articles: []newsapi.Article{
			feedArticle("a", "https://example.com/a", timePtr(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))),
			feedArticle("b", "https://example.com/b", timePtr(time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC))),
		},
		total: 2,
	}
	svc := NewService(feed, st, testLogger())

	page, err := svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalResults)
	require.Len(t, page.Articles, 2)

	// Served newest first, from the store.
	require.Equal(t, "b", page.Articles[0].Title)
	require.Equal(t, "a", page.Articles[1].Title)
	require.NotEmpty(t, page.Articles[0].NewsID)
	require.NotZero(t, page.Articles[0].ID)

	n, err := st.Count(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestGetNews_SecondIngestionIsIdempotent(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	feed := &fakeFeed{
		articles: []newsapi.Article{
			feedArticle("a", "https://example.com/a", timePtr(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))),
		},
		total: 1,
	}
	svc := NewService(feed, st, testLogger())

	_, err := svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)
	first, err := st.FindByURL(t.Context(), "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, first)

	// The same feed page again: nothing new is stored, and the existing
	// record keeps its identity.
	_, err = svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)

	n, _ := st.Count(t.Context())
	require.Equal(t, int64(1), n)
	second, _ := st.FindByURL(t.Context(), "https://example.com/a")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.NewsID, second.NewsID)
}

func TestGetNews_SkipsArticlesWithoutURL(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	feed := &fakeFeed{
		articles: []newsapi.Article{
			feedArticle("keep", "https://example.com/keep", nil),
			feedArticle("dropped", "", nil),
		},
		total: 2,
	}
	svc := NewService(feed, st, testLogger())

	_, err := svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)

	n, _ := st.Count(t.Context())
	require.Equal(t, int64(1), n)
}

func TestGetNews_DefaultsMissingPublishDate(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	feed := &fakeFeed{
		articles: []newsapi.Article{feedArticle("undated", "https://example.com/undated", nil)},
		total:    1,
	}
	svc := NewService(feed, st, testLogger())
	ingestTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return ingestTime }

	_, err := svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)

	saved, err := st.FindByURL(t.Context(), "https://example.com/undated")
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, ingestTime, saved.PublishedAt)
}

func TestGetNews_OneFailedInsertDoesNotAbortBatch(t *testing.T) {
	t.Parallel()
	st := &failingStore{Memory: store.NewMemory(), failURL: "https://example.com/bad"}
	feed := &fakeFeed{
		articles: []newsapi.Article{
			feedArticle("good1", "https://example.com/good1", nil),
			feedArticle("bad", "https://example.com/bad", nil),
			feedArticle("good2", "https://example.com/good2", nil),
		},
		total: 3,
	}
	svc := NewService(feed, st, testLogger())

	_, err := svc.GetNews(t.Context(), 1, 12)
	require.NoError(t, err)

	n, _ := st.Count(t.Context())
	require.Equal(t, int64(2), n)
}

func TestGetNews_UpstreamFailurePropagates(t *testing.T) {
	t.Parallel()
	feed := &fakeFeed{err: errors.New("feed down")}
	svc := NewService(feed, store.NewMemory(), testLogger())

	page, err := svc.GetNews(t.Context(), 1, 12)
	require.Error(t, err)
	require.Nil(t, page)
}

func TestGetNewsFromStore_NoUpstreamCall(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	for i, url := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		_, err := st.Insert(t.Context(), store.Article{
			NewsID:      "n" + url,
			Title:       url,
			URL:         url,
			PublishedAt: time.Date(2025, 3, 1, 10+i, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	feed := &fakeFeed{err: errors.New("must not be called")}
	svc := NewService(feed, st, testLogger())

	page, err := svc.GetNewsFromStore(t.Context(), 1, 2)
	require.NoError(t, err)
	require.Zero(t, feed.calls)
	require.Equal(t, int64(3), page.TotalCount)
	require.Len(t, page.Articles, 2)
	require.Equal(t, "https://example.com/3", page.Articles[0].URL)

	// Second page picks up where the first left off.
	page, err = svc.GetNewsFromStore(t.Context(), 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	require.Equal(t, "https://example.com/1", page.Articles[0].URL)
}

func TestBulkLoad(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	svc := NewService(&fakeFeed{}, st, testLogger())

	// Seed one article that the batch collides with.
	_, err := st.Insert(t.Context(), store.Article{
		NewsID:      "existing",
		Title:       "existing",
		URL:         "https://example.com/dup",
		PublishedAt: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	batch := []store.Article{
		{Title: "one", URL: "https://example.com/one", PublishedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Title: "dup", URL: "https://example.com/dup"},
		{Title: "two", URL: "https://example.com/two", PublishedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Title: "no-url"},
		{Title: "three", URL: "https://example.com/three", PublishedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)},
	}
	inserted, err := svc.BulkLoad(t.Context(), batch)
	require.NoError(t, err)

	// Of five: one duplicate skipped, one without url dropped.
	require.Len(t, inserted, 3)
	for _, a := range inserted {
		require.NotEmpty(t, a.NewsID)
		require.NotZero(t, a.ID)
	}

	n, _ := st.Count(t.Context())
	require.Equal(t, int64(4), n)
}

func TestBulkLoad_SkipsEntriesWithoutURL(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	svc := NewService(&fakeFeed{}, st, testLogger())

	batch := []store.Article{
		{Title: "one", URL: "https://example.com/one"},
		{Title: "two", URL: "https://example.com/two"},
		{Title: "missing-url"},
		{Title: "three", URL: "https://example.com/three"},
		{Title: "four", URL: "https://example.com/four"},
	}
	inserted, err := svc.BulkLoad(t.Context(), batch)
	require.NoError(t, err)
	require.Len(t, inserted, 4)

	n, _ := st.Count(t.Context())
	require.Equal(t, int64(4), n)
}

func TestBulkLoad_DefaultsIDAndDate(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	svc := NewService(&fakeFeed{}, st, testLogger())
	loadTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return loadTime }

	inserted, err := svc.BulkLoad(t.Context(), []store.Article{
		{Title: "bare", URL: "https://example.com/bare"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	require.NotEmpty(t, inserted[0].NewsID)
	require.Equal(t, loadTime, inserted[0].PublishedAt)
}

func TestBulkLoad_AllFiltered(t *testing.T) {
	t.Parallel()
	svc := NewService(&fakeFeed{}, store.NewMemory(), testLogger())

	inserted, err := svc.BulkLoad(t.Context(), []store.Article{{Title: "no-url"}})
	require.NoError(t, err)
	require.Empty(t, inserted)
}
