package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stories-api/pkg/domain"

	postgrest "github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"
)

const (
	storiesTable  = "stories"
	storyColumns  = "id,url,title,votes,created_on"
	upVoteRPCName = "upvote_story"
)

// SDKProvider hands out the Supabase SDK client. db.SupabaseClient implements it.
type SDKProvider interface {
	SDK() *supabase.Client
	ResetSDK() (*supabase.Client, error)
}

// Supabase is the storage gateway that talks to a Supabase project over its
// REST API, for deployments that have an API key but no database password.
// Votes are incremented by the upvote_story SQL function created by db.EnsureSchema.
//
// The SDK takes no context, so ctx is not honoured by this backend.
type Supabase struct {
	sdk SDKProvider
}

// restStory is a stories row as PostgREST encodes it.
type restStory struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Votes     int64     `json:"votes"`
	CreatedOn time.Time `json:"created_on"`
}

func (r restStory) story() domain.Story {
	return domain.Story{
		ID:        r.ID,
		URL:       r.URL,
		Title:     r.Title,
		Votes:     r.Votes,
		CreatedOn: r.CreatedOn,
	}
}

// NewSupabase creates a gateway over an initialized SDK client.
func NewSupabase(sdk SDKProvider) (*Supabase, error) {
	if sdk == nil || sdk.SDK() == nil {
		return nil, fmt.Errorf("supabase SDK not initialized")
	}
	return &Supabase{sdk: sdk}, nil
}

// FetchAll returns the top ranked stories.
func (s *Supabase) FetchAll(ctx context.Context) ([]domain.Story, error) {
	desc := &postgrest.OrderOpts{Ascending: false}

	var rows []restStory
	_, err := s.sdk.SDK().From(storiesTable).
		Select(storyColumns, "", false).
		Order("votes", desc).
		Order("created_on", desc).
		Limit(FetchLimit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, storageErr("fetch all", err)
	}
	return toStories(rows), nil
}

// FetchByID returns a single story by id.
func (s *Supabase) FetchByID(ctx context.Context, id int64) (domain.Story, bool, error) {
	var rows []restStory
	_, err := s.sdk.SDK().From(storiesTable).
		Select(storyColumns, "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Story{}, false, storageErr("fetch by id", err)
	}
	if len(rows) == 0 {
		return domain.Story{}, false, nil
	}
	return rows[0].story(), true, nil
}

// Insert stores a new story and reads it back by the id the database assigned.
func (s *Supabase) Insert(ctx context.Context, url, title string) (domain.Story, error) {
	var rows []restStory
	_, err := s.sdk.SDK().From(storiesTable).
		Insert(map[string]string{"url": url, "title": title}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Story{}, storageErr("insert", err)
	}
	if len(rows) == 0 {
		return domain.Story{}, storageErr("insert", fmt.Errorf("insert returned no row"))
	}

	story, ok, err := s.FetchByID(ctx, rows[0].ID)
	if err != nil {
		return domain.Story{}, err
	}
	if !ok {
		return domain.Story{}, storageErr("insert", fmt.Errorf("story %d missing after insert", rows[0].ID))
	}
	return story, nil
}

// UpVote calls upvote_story, which increments votes in place and returns the
// updated row. An unknown id returns no row and reports ok == false.
func (s *Supabase) UpVote(ctx context.Context, id int64) (domain.Story, bool, error) {
	body := s.sdk.SDK().Rpc(upVoteRPCName, "", map[string]int64{"story_id": id})
	if body == "" {
		// the SDK swallows the transport error and keeps failing until replaced
		if _, err := s.sdk.ResetSDK(); err != nil {
			return domain.Story{}, false, storageErr("up vote", err)
		}
		return domain.Story{}, false, storageErr("up vote", fmt.Errorf("rpc %s failed", upVoteRPCName))
	}

	rows, err := decodeRPCRows(body)
	if err != nil {
		return domain.Story{}, false, storageErr("up vote", err)
	}
	if len(rows) == 0 {
		return domain.Story{}, false, nil
	}
	return rows[0].story(), true, nil
}

// decodeRPCRows parses an RPC response, which is either a row array or a
// PostgREST error object.
func decodeRPCRows(body string) ([]restStory, error) {
	if strings.HasPrefix(strings.TrimSpace(body), "{") {
		var rpcErr postgrest.ExecuteError
		if err := json.Unmarshal([]byte(body), &rpcErr); err != nil {
			return nil, fmt.Errorf("decode rpc error: %w", err)
		}
		return nil, fmt.Errorf("rpc %s: (%s) %s", upVoteRPCName, rpcErr.Code, rpcErr.Message)
	}

	var rows []restStory
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("decode rpc rows: %w", err)
	}
	return rows, nil
}

func toStories(rows []restStory) []domain.Story {
	stories := make([]domain.Story, 0, len(rows))
	for _, r := range rows {
		stories = append(stories, r.story())
	}
	return stories
}
