package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"stories-api/pkg/domain"
)

// Memory is an in-process storage gateway, used for development and tests.
// Nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	stories map[int64]domain.Story
	lastID  int64
	now     func() time.Time
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		stories: make(map[int64]domain.Story),
		now:     time.Now,
	}
}

// FetchAll returns the top ranked stories.
func (m *Memory) FetchAll(ctx context.Context) ([]domain.Story, error) {
	m.mu.RLock()
	stories := make([]domain.Story, 0, len(m.stories))
	for _, s := range m.stories {
		stories = append(stories, s)
	}
	m.mu.RUnlock()

	sort.Slice(stories, func(i, j int) bool {
		if stories[i].Votes != stories[j].Votes {
			return stories[i].Votes > stories[j].Votes
		}
		if !stories[i].CreatedOn.Equal(stories[j].CreatedOn) {
			return stories[i].CreatedOn.After(stories[j].CreatedOn)
		}
		return stories[i].ID > stories[j].ID
	})

	if len(stories) > FetchLimit {
		stories = stories[:FetchLimit]
	}
	return stories, nil
}

// FetchByID returns a copy of the story with the given id.
func (m *Memory) FetchByID(ctx context.Context, id int64) (domain.Story, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stories[id]
	return s, ok, nil
}

// Insert stores a new story with the next id.
func (m *Memory) Insert(ctx context.Context, url, title string) (domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	s := domain.Story{
		ID:        m.lastID,
		URL:       url,
		Title:     title,
		CreatedOn: m.now().UTC(),
	}
	m.stories[s.ID] = s
	return s, nil
}

// UpVote adds one vote under the write lock.
func (m *Memory) UpVote(ctx context.Context, id int64) (domain.Story, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stories[id]
	if !ok {
		return domain.Story{}, false, nil
	}
	s.Votes++
	m.stories[id] = s
	return s, true, nil
}
