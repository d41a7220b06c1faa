package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Memory is an in-process Store used in tests and when no database is
// configured.
type Memory struct {
	mu    sync.RWMutex
	seq   int64
	byURL map[string]int // url -> index into items
	items []Article
}

func NewMemory() *Memory {
	return &Memory{byURL: make(map[string]int)}
}

func (m *Memory) FindByURL(_ context.Context, url string) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byURL[url]
	if !ok {
		return nil, nil
	}
	a := m.items[i]
	return &a, nil
}

func (m *Memory) Insert(_ context.Context, a Article) (*Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byURL[a.URL]; ok {
		return nil, ErrDuplicateURL
	}
	m.seq++
	a.ID = m.seq
	m.byURL[a.URL] = len(m.items)
	m.items = append(m.items, a)
	out := a
	return &out, nil
}

func (m *Memory) InsertBatch(ctx context.Context, articles []Article) ([]Article, error) {
	inserted := make([]Article, 0, len(articles))
	for _, a := range articles {
		saved, err := m.Insert(ctx, a)
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

func (m *Memory) FindPage(_ context.Context, offset, limit int) ([]Article, error) {
	m.mu.RLock()
	out := make([]Article, len(m.items))
	copy(out, m.items)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []Article{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}
