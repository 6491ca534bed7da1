package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stories-api/pkg/db"
	"stories-api/pkg/domain"
)

const (
	selectStoryColumns = `SELECT id, url, title, votes, created_on FROM stories`

	fetchAllQuery = selectStoryColumns + `
ORDER BY votes DESC, created_on DESC
LIMIT $1`

	fetchByIDQuery = selectStoryColumns + `
WHERE id = $1`

	insertQuery = `
INSERT INTO stories (url, title)
VALUES ($1, $2)
RETURNING id`

	upVoteQuery = `
UPDATE stories SET votes = votes + 1
WHERE id = $1`
)

// Postgres is the storage gateway backed by a Postgres connection pool.
type Postgres struct {
	pg db.DBProvider
}

// NewPostgres creates a gateway over the pool held by the given provider.
// The provider must already be connected.
func NewPostgres(pg db.DBProvider) (*Postgres, error) {
	if pg == nil || pg.DB() == nil {
		return nil, fmt.Errorf("postgres DB not connected")
	}
	return &Postgres{pg: pg}, nil
}

// FetchAll returns the top ranked stories.
func (p *Postgres) FetchAll(ctx context.Context) ([]domain.Story, error) {
	rows, err := p.pg.DB().QueryContext(ctx, fetchAllQuery, FetchLimit)
	if err != nil {
		return nil, storageErr("fetch all", err)
	}
	defer rows.Close()

	stories := make([]domain.Story, 0, FetchLimit)
	for rows.Next() {
		var s domain.Story
		if err := rows.Scan(&s.ID, &s.URL, &s.Title, &s.Votes, &s.CreatedOn); err != nil {
			return nil, storageErr("fetch all", fmt.Errorf("scan story: %w", err))
		}
		stories = append(stories, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("fetch all", fmt.Errorf("rows error: %w", err))
	}

	return stories, nil
}

// FetchByID returns a single story by id.
func (p *Postgres) FetchByID(ctx context.Context, id int64) (domain.Story, bool, error) {
	var s domain.Story
	err := p.pg.DB().QueryRowContext(ctx, fetchByIDQuery, id).
		Scan(&s.ID, &s.URL, &s.Title, &s.Votes, &s.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Story{}, false, nil
		}
		return domain.Story{}, false, storageErr("fetch by id", err)
	}
	return s, true, nil
}

// Insert stores a new story and reads it back so that the generated
// id, votes and created_on come from the database.
func (p *Postgres) Insert(ctx context.Context, url, title string) (domain.Story, error) {
	var id int64
	if err := p.pg.DB().QueryRowContext(ctx, insertQuery, url, title).Scan(&id); err != nil {
		return domain.Story{}, storageErr("insert", err)
	}

	s, ok, err := p.FetchByID(ctx, id)
	if err != nil {
		return domain.Story{}, err
	}
	if !ok {
		return domain.Story{}, storageErr("insert", fmt.Errorf("story %d missing after insert", id))
	}
	return s, nil
}

// UpVote adds one vote to the story. An unknown id updates nothing and
// reports ok == false.
func (p *Postgres) UpVote(ctx context.Context, id int64) (domain.Story, bool, error) {
	if _, err := p.pg.DB().ExecContext(ctx, upVoteQuery, id); err != nil {
		return domain.Story{}, false, storageErr("up vote", err)
	}
	return p.FetchByID(ctx, id)
}
