package prefetch

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/pkg/testsupport"
	"github.com/goliatone/go-notehub/query"
)

func TestResolveTag(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{"absent", nil, ""},
		{"empty slice", []string{}, ""},
		{"all sentinel", []string{"All"}, ""},
		{"known tag", []string{"Work"}, "Work"},
		{"unknown tag passes through", []string{"Urgent"}, "Urgent"},
		{"extra segments ignored", []string{"Todo", "more"}, "Todo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTag(tt.segments); got != tt.want {
				t.Errorf("ResolveTag(%v) = %q, want %q", tt.segments, got, tt.want)
			}
		})
	}
}

func TestNotesKey(t *testing.T) {
	key := NotesKey(query.Fingerprint{Page: 1, Tag: "Work"})
	if key.Namespace != note.QueryNamespace {
		t.Errorf("expected namespace %q, got %q", note.QueryNamespace, key.Namespace)
	}
	if key != NotesKey(query.Fingerprint{Page: 1, Tag: "Work"}) {
		t.Error("expected equal fingerprints to build equal keys")
	}
}

func TestStepRun_SnapshotHydratesWithoutFetch(t *testing.T) {
	server := testsupport.NewFakeGateway(testsupport.SampleNotes(t)...)
	ctx := context.Background()

	res, err := New(server).Run(ctx, []string{"Work"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Tag != "Work" || res.Entry.Status != query.StatusSuccess {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls := server.ListCalls(); len(calls) != 1 || calls[0] != (testsupport.ListCall{Page: 1, Tag: "Work"}) {
		t.Fatalf("unexpected list calls %+v", calls)
	}

	snap, err := query.DecodeSnapshot[note.Page](res.Snapshot)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	browser := testsupport.NewFakeGateway()
	client := query.New(NotesFetcher(browser))
	client.Hydrate(snap)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for entry := range client.Subscribe(subCtx, res.Key) {
		if entry.Status != query.StatusSuccess || entry.Fetching {
			t.Fatalf("expected hydrated success, got %+v", entry)
		}
		if len(entry.Data.Notes) != 2 {
			t.Errorf("expected 2 work notes, got %d", len(entry.Data.Notes))
		}
		break
	}
	if calls := browser.ListCalls(); len(calls) != 0 {
		t.Errorf("expected no client fetches, got %d", len(calls))
	}
}

func TestStepRun_AllMeansNoTag(t *testing.T) {
	server := testsupport.NewFakeGateway()

	for _, segments := range [][]string{nil, {"All"}} {
		res, err := New(server).Run(context.Background(), segments)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Key.Fingerprint != (query.Fingerprint{Page: 1}) {
			t.Errorf("segments %v: unexpected fingerprint %+v", segments, res.Key.Fingerprint)
		}
	}
}

func TestStepRun_FetchErrorIsRecorded(t *testing.T) {
	server := testsupport.NewFakeGateway()
	server.ListErr = note.NewServerError(502, "bad gateway")

	res, err := New(server).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected fetch failure to be swallowed, got %v", err)
	}
	if res.Entry.Status != query.StatusError || !errors.Is(res.Entry.Err, server.ListErr) {
		t.Errorf("expected error entry, got %+v", res.Entry)
	}

	snap, err := query.DecodeSnapshot[note.Page](res.Snapshot)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Status != query.StatusError {
		t.Errorf("expected error entry in snapshot, got %+v", snap.Entries)
	}
}
