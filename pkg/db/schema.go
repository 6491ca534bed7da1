package db

import (
	"context"
	"fmt"
)

var storiesDDL = []string{`
CREATE TABLE IF NOT EXISTS stories (
  id BIGSERIAL PRIMARY KEY,
  url TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  votes BIGINT NOT NULL DEFAULT 0 CHECK (votes >= 0),
  created_on TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS stories_rank_idx ON stories (votes DESC, created_on DESC)`,
	// called over the Supabase REST API, which has no relative update
	`
CREATE OR REPLACE FUNCTION upvote_story(story_id BIGINT)
RETURNS SETOF stories
LANGUAGE sql
AS $$
  UPDATE stories SET votes = votes + 1
  WHERE id = story_id
  RETURNING *;
$$`,
}

// EnsureSchema creates the stories table, its ranking index and the
// upvote_story function if they are missing.
func EnsureSchema(ctx context.Context, p DBProvider) error {
	if p.DB() == nil {
		return fmt.Errorf("postgres DB not connected")
	}

	for _, ddl := range storiesDDL {
		if _, err := p.DB().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create stories schema: %w", err)
		}
	}
	return nil
}
