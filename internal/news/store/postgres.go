package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for a unique constraint
// violation.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS news_articles (
	id           BIGSERIAL PRIMARY KEY,
	news_id      TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT,
	content      TEXT,
	url          TEXT NOT NULL UNIQUE,
	image_url    TEXT,
	source       JSONB NOT NULL DEFAULT '{}',
	published_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS news_articles_published_at_idx
	ON news_articles (published_at DESC, id DESC);
`

// Postgres is the production Store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// EnsureSchema creates the article table and indexes if absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Postgres) FindByURL(ctx context.Context, url string) (*Article, error) {
	const q = `
		SELECT id, news_id, title, COALESCE(description,''), COALESCE(content,''),
		       url, COALESCE(image_url,''), source, published_at
		FROM news_articles WHERE url = $1
	`
	a, err := scanArticle(p.db.QueryRowContext(ctx, q, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article by url: %w", err)
	}
	return a, nil
}

func (p *Postgres) Insert(ctx context.Context, a Article) (*Article, error) {
	srcJSON, err := json.Marshal(a.Source)
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	const q = `
		INSERT INTO news_articles (news_id, title, description, content, url, image_url, source, published_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`
	err = p.db.QueryRowContext(ctx, q,
		a.NewsID, a.Title, a.Description, a.Content, a.URL, a.ImageURL, srcJSON, a.PublishedAt,
	).Scan(&a.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("insert article: %w", err)
	}
	return &a, nil
}

func (p *Postgres) InsertBatch(ctx context.Context, articles []Article) ([]Article, error) {
	inserted := make([]Article, 0, len(articles))
	for _, a := range articles {
		saved, err := p.Insert(ctx, a)
		if errors.Is(err, ErrDuplicateURL) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, *saved)
	}
	return inserted, nil
}

func (p *Postgres) FindPage(ctx context.Context, offset, limit int) ([]Article, error) {
	const q = `
		SELECT id, news_id, title, COALESCE(description,''), COALESCE(content,''),
		       url, COALESCE(image_url,''), source, published_at
		FROM news_articles
		ORDER BY published_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find article page: %w", err)
	}
	defer rows.Close()

	out := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news_articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var srcJSON []byte
	err := row.Scan(&a.ID, &a.NewsID, &a.Title, &a.Description, &a.Content,
		&a.URL, &a.ImageURL, &srcJSON, &a.PublishedAt)
	if err != nil {
		return nil, err
	}
	if len(srcJSON) > 0 {
		if err := json.Unmarshal(srcJSON, &a.Source); err != nil {
			return nil, fmt.Errorf("decode source: %w", err)
		}
	}
	return &a, nil
}
