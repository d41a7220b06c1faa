package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateURL is returned when an insert violates the url
// uniqueness constraint. The constraint — not the pre-insert existence
// check — is what actually guarantees de-duplication under concurrent
// ingestion runs.
var ErrDuplicateURL = errors.New("article url already exists")

// Source identifies the publisher of an article.
type Source struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Article is the persisted news record. URL is the de-duplication key:
// no two stored articles share one.
type Article struct {
	ID          int64     `json:"id"`
	NewsID      string    `json:"newsid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"urlToImage,omitempty"`
	Source      Source    `json:"source"`
	PublishedAt time.Time `json:"date"`
}

// Store is the persistent article store. It is the sole owner of
// Article lifetime and the sole arbiter of the url uniqueness
// invariant.
type Store interface {
	// FindByURL returns the article with the given url, or (nil, nil)
	// when absent.
	FindByURL(ctx context.Context, url string) (*Article, error)
	// Insert persists one article and returns it with its assigned ID.
	// A url collision yields ErrDuplicateURL.
	Insert(ctx context.Context, a Article) (*Article, error)
	// InsertBatch persists articles one by one, skipping url
	// collisions, and returns those actually inserted. Any other
	// storage failure aborts the batch and is returned.
	InsertBatch(ctx context.Context, articles []Article) ([]Article, error)
	// FindPage returns articles ordered by publish date descending.
	FindPage(ctx context.Context, offset, limit int) ([]Article, error)
	Count(ctx context.Context) (int64, error)
}
