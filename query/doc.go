// Package query implements the client side query cache used by NoteHub pages.
//
// A Client maps a Key (namespace plus page, search text and tag) to the result
// of fetching it. Readers subscribe to a key and receive entry snapshots as the
// key moves through pending, success and error. Writers never touch entries;
// after a mutation they call Invalidate and every active subscriber refetches.
//
// The server renders a page by creating a Client per request, prefetching the
// first page and encoding Dehydrate's snapshot into the response. The browser
// side (or the CLI) decodes it and calls Hydrate on its long-lived Client before
// any subscriber starts, so the first read is served without a request:
//
//	srv := query.New(fetchPage)
//	srv.Prefetch(ctx, key)
//	payload, _ := query.EncodeSnapshot(srv.Dehydrate())
//
//	snap, _ := query.DecodeSnapshot[note.Page](payload)
//	session.Hydrate(snap)
//	for entry := range session.Subscribe(ctx, key) {
//		render(entry)
//	}
//
// Requests for one key are deduplicated and ordered: concurrent readers share a
// request, and a response from an older request never overwrites the result of
// a newer one.
package query
