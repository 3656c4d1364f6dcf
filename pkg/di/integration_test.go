package di

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/gateway"
	"github.com/goliatone/go-notehub/listview"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/noteform"
	"github.com/goliatone/go-notehub/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAPI counts list requests that reach the backend.
type countingAPI struct {
	*gateway.Client
	lists atomic.Int32
}

func (a *countingAPI) ListNotes(ctx context.Context, page int, q, tag string) (note.Page, error) {
	a.lists.Add(1)
	return a.Client.ListNotes(ctx, page, q, tag)
}

func startServer(t *testing.T, c *Container) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := c.Server()
	go func() { _ = srv.App().Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return "http://" + ln.Addr().String()
}

func waitForState(t *testing.T, v *listview.View, cond func(listview.State) bool) listview.State {
	t.Helper()

	if s := v.State(); cond(s) {
		return s
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-v.Updates():
			if cond(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out, last state %+v", v.State())
		}
	}
}

func TestEndToEnd_PrefetchHydrateCreate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	c := newTestContainer(t, cfg)
	base := startServer(t, c)

	cfg.Gateway.BaseURL = base + "/api"
	gw, err := NewGateway(cfg, nil)
	require.NoError(t, err)

	for _, d := range []note.Draft{
		{Title: "Ship release", Content: "Tag v1.4", Tag: note.TagWork},
		{Title: "Review PR", Tag: note.TagWork},
		{Title: "Water plants", Tag: note.TagTodo},
	} {
		_, err := gw.CreateNote(ctx, d)
		require.NoError(t, err)
	}

	api := &countingAPI{Client: gw}
	sess := NewSession(cfg, api, nil)

	fp, err := sess.LoadPage(ctx, gw, base+"/notes/filter/Work")
	require.NoError(t, err)
	assert.Equal(t, query.Fingerprint{Page: 1, Tag: "Work"}, fp)

	view := listview.New(sess.Client())
	t.Cleanup(view.Close)
	view.Start(ctx, fp)

	state := waitForState(t, view, func(s listview.State) bool {
		return s.Entry.Status == query.StatusSuccess
	})
	assert.Len(t, state.Entry.Data.Notes, 2)
	assert.Equal(t, int32(0), api.lists.Load(), "hydrated page should not be refetched")

	created := make(chan note.Note, 1)
	form := noteform.New(api, sess.Client(), noteform.OnCreated(func(n note.Note) { created <- n }))
	form.Set(noteform.FieldTitle, "Sprint demo")
	form.Set(noteform.FieldTag, string(note.TagWork))
	require.True(t, form.CanSubmit())

	_, err = form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, noteform.PhaseClosed, form.Phase())
	assert.Equal(t, "Sprint demo", (<-created).Title)

	state = waitForState(t, view, func(s listview.State) bool {
		return s.Entry.Status == query.StatusSuccess && !s.Entry.Fetching && len(s.Entry.Data.Notes) == 3
	})
	assert.Equal(t, "Sprint demo", state.Entry.Data.Notes[0].Title)
	assert.Equal(t, int32(1), api.lists.Load())
}

func TestEndToEnd_BackendRejectsInvalidDraft(t *testing.T) {
	cfg := testConfig(t)
	c := newTestContainer(t, cfg)
	base := startServer(t, c)

	cfg.Gateway.BaseURL = base + "/api"
	gw, err := NewGateway(cfg, nil)
	require.NoError(t, err)

	_, err = gw.CreateNote(context.Background(), note.Draft{Title: "Hi", Tag: "Urgent"})
	require.Error(t, err)
	assert.True(t, note.IsValidation(err))

	fields, ok := goerrors.GetValidationErrors(err)
	require.True(t, ok)
	require.Len(t, fields, 2)
	assert.Equal(t, note.FieldTitle, fields[0].Field)
	assert.Equal(t, note.MsgTitleMin, fields[0].Message)
	assert.Equal(t, note.FieldTag, fields[1].Field)
}

func TestEndToEnd_SnapshotOfUnknownRoute(t *testing.T) {
	cfg := testConfig(t)
	c := newTestContainer(t, cfg)
	base := startServer(t, c)

	cfg.Gateway.BaseURL = base + "/api"
	gw, err := NewGateway(cfg, nil)
	require.NoError(t, err)

	_, _, err = gw.FetchSnapshot(context.Background(), base+"/nowhere")
	require.Error(t, err)
	assert.True(t, note.IsServer(err))
}
