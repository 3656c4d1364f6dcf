package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/note"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg ...Config) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := Config{BaseURL: srv.URL + "/api"}
	if len(cfg) > 0 {
		c = cfg[0]
		c.BaseURL = srv.URL + "/api"
	}
	client, err := New(c)
	require.NoError(t, err)
	return client
}

func TestListNotes_BuildsQuery(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notes":[{"id":"` + uuid.NewString() + `","title":"Standup","tag":"Meeting"}],"totalPages":3}`))
	})

	page, err := client.ListNotes(context.Background(), 2, "sync", "Meeting")
	require.NoError(t, err)

	assert.Equal(t, "/api/notes", got.URL.Path)
	assert.Equal(t, "2", got.URL.Query().Get("page"))
	assert.Equal(t, "12", got.URL.Query().Get("perPage"))
	assert.Equal(t, "sync", got.URL.Query().Get("search"))
	assert.Equal(t, "Meeting", got.URL.Query().Get("tag"))
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Notes, 1)
	assert.Equal(t, note.TagMeeting, page.Notes[0].Tag)
}

func TestListNotes_OmitsEmptyFilters(t *testing.T) {
	var query map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"notes":null,"totalPages":0}`))
	})

	page, err := client.ListNotes(context.Background(), 1, "", "")
	require.NoError(t, err)

	assert.NotContains(t, query, "search")
	assert.NotContains(t, query, "tag")
	assert.NotNil(t, page.Notes)
	assert.Empty(t, page.Notes)
}

func TestListNotes_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"category":"internal","message":"database unavailable"}}`))
	})

	_, err := client.ListNotes(context.Background(), 1, "", "")
	require.Error(t, err)
	assert.True(t, note.IsServer(err))

	var gerr *goerrors.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusServiceUnavailable, gerr.Code)
	assert.Equal(t, "database unavailable", gerr.Message)
}

func TestListNotes_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.ListNotes(context.Background(), 1, "", "")
	assert.True(t, note.IsServer(err))
}

func TestListNotes_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	_, err = client.ListNotes(context.Background(), 1, "", "")
	require.Error(t, err)
	assert.True(t, note.IsNetwork(err))
}

func TestCreateNote_SendsDraft(t *testing.T) {
	var received note.Draft
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(note.Note{ID: uuid.New(), Title: received.Title, Tag: received.Tag})
	}, Config{Token: "secret"})

	draft := note.Draft{Title: "Buy milk", Tag: note.TagShopping}
	created, err := client.CreateNote(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, draft, received)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "Buy milk", created.Title)
}

func TestCreateNote_ValidationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"category":"validation","message":"invalid note",` +
			`"validation_errors":[{"field":"title","message":"Minimum 3 characters required"}]}}`))
	})

	_, err := client.CreateNote(context.Background(), note.Draft{Title: "Hi", Tag: note.TagTodo})
	require.Error(t, err)
	assert.True(t, note.IsValidation(err))

	fields, ok := goerrors.GetValidationErrors(err)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "title", fields[0].Field)
	assert.Equal(t, "Minimum 3 characters required", fields[0].Message)
}

func TestCreateNote_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CreateNote(context.Background(), note.Draft{Title: "Buy milk", Tag: note.TagTodo})
	assert.True(t, note.IsServer(err))
	assert.False(t, note.IsValidation(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	}, Config{Timeout: 20 * time.Millisecond})
	defer close(release)

	_, err := client.ListNotes(context.Background(), 1, "", "")
	assert.True(t, note.IsNetwork(err))
}

func TestFetchSnapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SnapshotContentType, r.Header.Get("Accept"))
		w.Header().Set(TagHeader, "Work")
		_, _ = w.Write([]byte{1, 2, 3})
	})

	data, tag, err := client.FetchSnapshot(context.Background(), client.baseURL+"/../notes/filter/Work")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, "Work", tag)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{BaseURL: "localhost:8080"}.Validate())
	assert.Error(t, Config{BaseURL: "http://x", Timeout: -time.Second}.Validate())
}
