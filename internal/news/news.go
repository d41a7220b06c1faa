package news

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketgateway/internal/news/newsapi"
	"marketgateway/internal/news/store"

	"github.com/google/uuid"
)

const DefaultPageSize = 12

// FeedClient is the upstream headline feed the service consumes.
type FeedClient interface {
	TopHeadlines(ctx context.Context, page, pageSize int) ([]newsapi.Article, int, error)
}

// Page is the response for an ingesting read: the page always comes
// from the persistent store, the total from the upstream feed.
type Page struct {
	Articles     []store.Article `json:"articles"`
	TotalResults int             `json:"totalResults"`
}

// StorePage is the response for a store-only read.
type StorePage struct {
	Articles   []store.Article `json:"articles"`
	TotalCount int64           `json:"totalCount"`
}

// Service ingests headlines into the article store and serves pages
// from it.
type Service struct {
	feed  FeedClient
	store store.Store
	log   *slog.Logger

	// now stamps articles missing a publish date; tests swap it out.
	now func() time.Time
}

func NewService(feed FeedClient, st store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{feed: feed, store: st, log: log, now: time.Now}
}

// GetNews fetches one upstream page, persists any articles not yet in
// the store, then serves the requested page from the store. Serving
// from the store — never from the freshly fetched batch — keeps
// pagination stable and the whole call idempotent.
func (s *Service) GetNews(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	upstream, total, err := s.feed.TopHeadlines(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch headlines: %w", err)
	}

	saved := 0
	for _, a := range upstream {
		if a.URL == "" {
			s.log.Warn("skipping article without url", "title", a.Title)
			continue
		}
		existing, err := s.store.FindByURL(ctx, a.URL)
		if err != nil {
			s.log.Error("article lookup failed", "url", a.URL, "err", err)
			continue
		}
		if existing != nil {
			continue
		}
		publishedAt := s.now()
		if a.PublishedAt != nil {
			publishedAt = *a.PublishedAt
		}
		art := store.Article{
			NewsID:      uuid.NewString(),
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			Source:      mapSource(a.Source),
			PublishedAt: publishedAt,
		}
		// One bad article must not abort the rest of the batch. Two
		// overlapping ingestion runs can also race past the existence
		// check; the store's unique constraint settles it here.
		if _, err := s.store.Insert(ctx, art); err != nil {
			s.log.Error("failed to save article", "url", art.URL, "err", err)
			continue
		}
		saved++
	}
	if saved > 0 {
		s.log.Info("saved new articles", "count", saved)
	} else {
		s.log.Info("no new articles needed saving")
	}

	articles, err := s.store.FindPage(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("read news page: %w", err)
	}
	return &Page{Articles: articles, TotalResults: total}, nil
}

// GetNewsFromStore serves a page directly from the store with no
// upstream call, using the same ordering contract as GetNews.
func (s *Service) GetNewsFromStore(ctx context.Context, page, pageSize int) (*StorePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	articles, err := s.store.FindPage(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("read news page: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count news: %w", err)
	}
	return &StorePage{Articles: articles, TotalCount: total}, nil
}

// BulkLoad persists a batch of pre-formed articles, skipping entries
// without a url. Inserts are attempted per item: url collisions are
// skipped, any other storage failure aborts and propagates. Returns
// the articles actually persisted.
func (s *Service) BulkLoad(ctx context.Context, articles []store.Article) ([]store.Article, error) {
	valid := make([]store.Article, 0, len(articles))
	for _, a := range articles {
		if a.URL == "" {
			s.log.Warn("skipping bulk article without url", "title", a.Title)
			continue
		}
		if a.NewsID == "" {
			a.NewsID = uuid.NewString()
		}
		if a.PublishedAt.IsZero() {
			a.PublishedAt = s.now()
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		s.log.Info("no valid articles to insert after filtering")
		return []store.Article{}, nil
	}

	inserted, err := s.store.InsertBatch(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("bulk insert news: %w", err)
	}
	s.log.Info("bulk inserted articles", "requested", len(articles), "inserted", len(inserted))
	return inserted, nil
}

func mapSource(src newsapi.Source) store.Source {
	out := store.Source{Name: src.Name}
	if src.ID != nil {
		out.ID = *src.ID
	}
	return out
}
