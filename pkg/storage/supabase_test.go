package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"stories-api/pkg/db"
	"stories-api/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantStoriesOrder = "votes.desc.nullslast,created_on.desc.nullslast"

// fakePostgREST serves the subset of the PostgREST API the Supabase gateway
// uses, backed by a Memory store.
type fakePostgREST struct {
	t     *testing.T
	store *Memory
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/stories":
		q := r.URL.Query()
		if id := strings.TrimPrefix(q.Get("id"), "eq."); id != "" {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				writePostgRESTError(w, http.StatusBadRequest, "22P02", "invalid input syntax for type bigint")
				return
			}
			s, ok, _ := f.store.FetchByID(ctx, n)
			if !ok {
				writeRows(w, http.StatusOK)
				return
			}
			writeRows(w, http.StatusOK, s)
			return
		}

		assert.Equal(f.t, wantStoriesOrder, q.Get("order"))
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			writePostgRESTError(w, http.StatusBadRequest, "PGRST103", "missing limit")
			return
		}
		all, _ := f.store.FetchAll(ctx)
		if len(all) > limit {
			all = all[:limit]
		}
		writeRows(w, http.StatusOK, all...)

	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/stories":
		assert.Equal(f.t, "return=representation", r.Header.Get("Prefer"))
		var body struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writePostgRESTError(w, http.StatusBadRequest, "PGRST102", "invalid body")
			return
		}
		s, _ := f.store.Insert(ctx, body.URL, body.Title)
		writeRows(w, http.StatusCreated, s)

	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/rpc/upvote_story":
		var args struct {
			StoryID int64 `json:"story_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writePostgRESTError(w, http.StatusBadRequest, "PGRST102", "invalid body")
			return
		}
		s, ok, _ := f.store.UpVote(ctx, args.StoryID)
		if !ok {
			writeRows(w, http.StatusOK)
			return
		}
		writeRows(w, http.StatusOK, s)

	default:
		writePostgRESTError(w, http.StatusNotFound, "PGRST202", "no route for "+r.Method+" "+r.URL.Path)
	}
}

func writeRows(w http.ResponseWriter, status int, stories ...domain.Story) {
	rows := make([]restStory, 0, len(stories))
	for _, s := range stories {
		rows = append(rows, restStory{ID: s.ID, URL: s.URL, Title: s.Title, Votes: s.Votes, CreatedOn: s.CreatedOn})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rows)
}

func writePostgRESTError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}

// startSupabase connects a REST-only Supabase client to handler.
func startSupabase(t *testing.T, handler http.Handler) (*httptest.Server, *db.SupabaseClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := db.NewSupabaseClient(db.SupabaseConfig{SupabaseURL: srv.URL, SupabaseKey: "test-key"})
	require.NoError(t, client.Connect(context.Background()))
	require.False(t, client.HasDirectDB())
	return srv, client
}

func TestSupabase(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		_, client := startSupabase(t, &fakePostgREST{t: t, store: NewMemory()})
		store, err := NewSupabase(client)
		require.NoError(t, err)
		return store
	})
}

func TestSupabase_SendsAPIKey(t *testing.T) {
	var gotKey, gotAuth string
	_, client := startSupabase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		writeRows(w, http.StatusOK)
	}))
	store, err := NewSupabase(client)
	require.NoError(t, err)

	stories, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stories)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestSupabase_PostgRESTErrorsAreStorageErrors(t *testing.T) {
	_, client := startSupabase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePostgRESTError(w, http.StatusNotFound, "PGRST202", "Could not find the function public.upvote_story")
	}))
	store, err := NewSupabase(client)
	require.NoError(t, err)

	var se *StorageError

	_, err = store.FetchAll(context.Background())
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fetch all", se.Op)

	_, _, err = store.UpVote(context.Background(), 1)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "up vote", se.Op)
	assert.Contains(t, se.Error(), "PGRST202")
}

func TestSupabase_UpVoteTransportFailureResetsSDK(t *testing.T) {
	srv, client := startSupabase(t, &fakePostgREST{t: t, store: NewMemory()})
	store, err := NewSupabase(client)
	require.NoError(t, err)

	before := client.SDK()
	srv.Close()

	_, _, err = store.UpVote(context.Background(), 1)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "up vote", se.Op)
	assert.NotSame(t, before, client.SDK())
}

func TestNewSupabase_RequiresSDK(t *testing.T) {
	_, err := NewSupabase(nil)
	assert.Error(t, err)

	_, err = NewSupabase(db.NewSupabaseClient(db.SupabaseConfig{}))
	assert.Error(t, err)
}
