// Package storage owns every read and write of stories.
//
// All backends return domain.Story values, never pointers into their own
// state. A missing story is reported through the ok result, not as an error.
package storage

import (
	"context"
	"fmt"

	"stories-api/pkg/domain"
)

// FetchLimit caps the number of stories returned by FetchAll.
const FetchLimit = 50

// Store is the storage gateway for stories.
type Store interface {
	// FetchAll returns up to FetchLimit stories ordered by votes, then
	// creation time, both descending.
	FetchAll(ctx context.Context) ([]domain.Story, error)

	// FetchByID returns the story with the given id. ok is false when no
	// such story exists.
	FetchByID(ctx context.Context, id int64) (story domain.Story, ok bool, err error)

	// Insert persists a new story with zero votes and returns it as read
	// back from the store.
	Insert(ctx context.Context, url, title string) (domain.Story, error)

	// UpVote increments the vote count of the story and returns the updated
	// row. ok is false when no such story exists.
	UpVote(ctx context.Context, id int64) (story domain.Story, ok bool, err error)
}

// StorageError wraps a failure talking to the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
