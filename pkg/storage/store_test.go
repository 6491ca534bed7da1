package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"stories-api/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests exercises the gateway contract against an empty store.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("fetch all on empty store", func(t *testing.T) {
		s := newStore(t)
		stories, err := s.FetchAll(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, stories)
		assert.Empty(t, stories)
	})

	t.Run("insert assigns fresh ids and zero votes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seen := make(map[int64]bool)
		for i := 0; i < 5; i++ {
			url := fmt.Sprintf("http://example.com/%d", i)
			story, err := s.Insert(ctx, url, "title")
			require.NoError(t, err)

			assert.Equal(t, int64(0), story.Votes)
			assert.Equal(t, url, story.URL)
			assert.Equal(t, "title", story.Title)
			assert.False(t, story.CreatedOn.IsZero())
			assert.False(t, seen[story.ID], "id %d reused", story.ID)
			seen[story.ID] = true
		}
	})

	t.Run("inserted story is visible", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		inserted, err := s.Insert(ctx, "http://example.com", "Example Domain")
		require.NoError(t, err)

		got, ok, err := s.FetchByID(ctx, inserted.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, inserted.ID, got.ID)
		assert.Equal(t, inserted.Title, got.Title)

		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, inserted.ID, all[0].ID)
	})

	t.Run("fetch by unknown id", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.FetchByID(context.Background(), 424242)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fetch all is capped and ranked", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ids := make([]int64, 0, FetchLimit+5)
		for i := 0; i < FetchLimit+5; i++ {
			story, err := s.Insert(ctx, fmt.Sprintf("http://example.com/%d", i), "t")
			require.NoError(t, err)
			ids = append(ids, story.ID)
		}
		// give a few early stories votes so they outrank newer ones
		for i, id := range ids[:3] {
			for v := 0; v <= i; v++ {
				_, _, err := s.UpVote(ctx, id)
				require.NoError(t, err)
			}
		}

		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, FetchLimit)
		assertRanked(t, all)

		assert.Equal(t, ids[2], all[0].ID)
		assert.Equal(t, ids[1], all[1].ID)
		assert.Equal(t, ids[0], all[2].ID)
	})

	t.Run("up vote twice adds two", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		story, err := s.Insert(ctx, "http://example.com", "t")
		require.NoError(t, err)

		first, ok, err := s.UpVote(ctx, story.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), first.Votes)

		second, ok, err := s.UpVote(ctx, story.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(2), second.Votes)
	})

	t.Run("concurrent up votes are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.Insert(ctx, "http://a.example", "a")
		require.NoError(t, err)
		b, err := s.Insert(ctx, "http://b.example", "b")
		require.NoError(t, err)

		const perStory = 20
		var wg sync.WaitGroup
		errs := make(chan error, 2*perStory)
		for i := 0; i < perStory; i++ {
			for _, id := range []int64{a.ID, b.ID} {
				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					if _, _, err := s.UpVote(ctx, id); err != nil {
						errs <- err
					}
				}(id)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for _, id := range []int64{a.ID, b.ID} {
			got, ok, err := s.FetchByID(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(perStory), got.Votes)
		}
	})

	t.Run("up vote unknown id changes nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		existing, err := s.Insert(ctx, "http://example.com", "t")
		require.NoError(t, err)

		_, ok, err := s.UpVote(ctx, existing.ID+1000)
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := s.FetchByID(ctx, existing.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(0), got.Votes)
	})
}

func assertRanked(t *testing.T, stories []domain.Story) {
	t.Helper()
	for i := 1; i < len(stories); i++ {
		prev, cur := stories[i-1], stories[i]
		if prev.Votes == cur.Votes {
			assert.False(t, cur.CreatedOn.After(prev.CreatedOn),
				"story %d created after %d with equal votes", cur.ID, prev.ID)
			continue
		}
		assert.Greater(t, prev.Votes, cur.Votes)
	}
}
