package repositorycache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-notehub/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type testRecord struct {
	ID    uuid.UUID
	Title string
}

// fakeRepository records calls to the methods the decorator overrides. Any
// other method falls through to the nil embedded interface and panics.
type fakeRepository struct {
	repository.Repository[*testRecord]

	mu      sync.Mutex
	calls   map[string]int
	records []*testRecord
	err     error

	// listGate, when set, holds List after it has read the records.
	listGate    chan struct{}
	listStarted chan struct{}
}

func newFakeRepository(records ...*testRecord) *fakeRepository {
	return &fakeRepository{calls: make(map[string]int), records: records}
}

func (f *fakeRepository) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeRepository) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*testRecord, error) {
	f.record("GetByID")
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records {
		if r.ID.String() == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*testRecord, int, error) {
	f.record("List")
	if f.err != nil {
		return nil, 0, f.err
	}

	f.mu.Lock()
	records := append([]*testRecord(nil), f.records...)
	f.mu.Unlock()

	if f.listGate != nil {
		f.listStarted <- struct{}{}
		<-f.listGate
	}
	return records, len(records), nil
}

func (f *fakeRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	f.record("Count")
	return len(f.records), f.err
}

func (f *fakeRepository) Create(ctx context.Context, record *testRecord, criteria ...repository.InsertCriteria) (*testRecord, error) {
	f.record("Create")
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	return record, nil
}

func (f *fakeRepository) Update(ctx context.Context, record *testRecord, criteria ...repository.UpdateCriteria) (*testRecord, error) {
	f.record("Update")
	return record, f.err
}

func (f *fakeRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	f.record("DeleteWhere")
	return f.err
}

func (f *fakeRepository) Handlers() repository.ModelHandlers[*testRecord] {
	return repository.ModelHandlers[*testRecord]{
		GetID: func(r *testRecord) uuid.UUID { return r.ID },
	}
}

func newTestRepository(t *testing.T, base *fakeRepository, opts ...Option) *CachedRepository[*testRecord] {
	t.Helper()

	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}
	return New[*testRecord](base, service, cache.NewDefaultKeySerializer(), opts...)
}

func byTag(tag string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where("tag = ?", tag) }
}

func TestNew_Namespace(t *testing.T) {
	repo := newTestRepository(t, newFakeRepository())
	if got := repo.Namespace(); got != "test_record" {
		t.Errorf("expected default namespace test_record, got %q", got)
	}

	repo = newTestRepository(t, newFakeRepository(), WithNamespace("notes"))
	if got := repo.Namespace(); got != "notes" {
		t.Errorf("expected notes namespace, got %q", got)
	}
}

func TestList_CriteriaWithoutQueryKeyBypassCache(t *testing.T) {
	base := newFakeRepository(&testRecord{ID: uuid.New()})
	repo := newTestRepository(t, base)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := repo.List(ctx, byTag("Work")); err != nil {
			t.Fatalf("List: %v", err)
		}
	}

	if got := base.count("List"); got != 2 {
		t.Errorf("expected 2 base calls, got %d", got)
	}
	if repo.TrackedKeys() != 0 {
		t.Errorf("expected no tracked keys, got %d", repo.TrackedKeys())
	}
}

func TestList_QueryKeySeparatesEntries(t *testing.T) {
	base := newFakeRepository(&testRecord{ID: uuid.New()})
	repo := newTestRepository(t, base)

	work := WithQueryKey(context.Background(), 1, "Work")
	home := WithQueryKey(context.Background(), 1, "Personal")

	for i := 0; i < 3; i++ {
		records, total, err := repo.List(work, byTag("Work"))
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(records) != 1 || total != 1 {
			t.Fatalf("unexpected result %d/%d", len(records), total)
		}
	}
	if _, _, err := repo.List(home, byTag("Personal")); err != nil {
		t.Fatalf("List: %v", err)
	}

	if got := base.count("List"); got != 2 {
		t.Errorf("expected one base call per query key, got %d", got)
	}
	if got := repo.TrackedKeys(); got != 2 {
		t.Errorf("expected 2 tracked keys, got %d", got)
	}
}

func TestCreate_InvalidatesQueriesOnly(t *testing.T) {
	existing := &testRecord{ID: uuid.New(), Title: "first"}
	base := newFakeRepository(existing)
	repo := newTestRepository(t, base)
	ctx := WithQueryKey(context.Background(), "page-1")

	if _, _, err := repo.List(ctx, byTag("")); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := repo.Count(ctx); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), existing.ID.String()); err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if _, err := repo.Create(context.Background(), &testRecord{ID: uuid.New(), Title: "second"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	records, total, err := repo.List(ctx, byTag(""))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || total != 2 {
		t.Errorf("expected fresh list after create, got %d/%d", len(records), total)
	}
	if _, err := repo.GetByID(context.Background(), existing.ID.String()); err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got := base.count("List"); got != 2 {
		t.Errorf("expected list refetch, got %d calls", got)
	}
	if got := base.count("GetByID"); got != 1 {
		t.Errorf("expected GetByID to stay cached, got %d calls", got)
	}
}

func TestCreate_ListInFlightDoesNotOutliveInvalidation(t *testing.T) {
	base := newFakeRepository()
	base.listGate = make(chan struct{})
	base.listStarted = make(chan struct{}, 2)
	repo := newTestRepository(t, base)
	ctx := WithQueryKey(context.Background(), "page-1")

	type listed struct {
		records []*testRecord
		err     error
	}
	list := func() <-chan listed {
		done := make(chan listed, 1)
		go func() {
			records, _, err := repo.List(ctx)
			done <- listed{records: records, err: err}
		}()
		return done
	}

	before := list()
	<-base.listStarted

	if _, err := repo.Create(context.Background(), &testRecord{ID: uuid.New()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// must not join the fetch that started before the create
	after := list()
	<-base.listStarted
	close(base.listGate)

	if res := <-before; res.err != nil || len(res.records) != 0 {
		t.Fatalf("expected the earlier list to see 0 records, got %d (%v)", len(res.records), res.err)
	}
	if res := <-after; res.err != nil || len(res.records) != 1 {
		t.Fatalf("expected the later list to see 1 record, got %d (%v)", len(res.records), res.err)
	}

	records, _, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record after create, got %d", len(records))
	}
	if got := base.count("List"); got != 2 {
		t.Errorf("expected the last list to be served from cache, got %d base calls", got)
	}
	if got := repo.TrackedKeys(); got != 1 {
		t.Errorf("expected 1 tracked key, got %d", got)
	}
}

func TestCreate_FailureKeepsCache(t *testing.T) {
	base := newFakeRepository()
	repo := newTestRepository(t, base)
	ctx := WithQueryKey(context.Background(), "all")

	repo.List(ctx)
	base.err = errors.New("constraint")
	if _, err := repo.Create(context.Background(), &testRecord{}); err == nil {
		t.Fatal("expected create error")
	}
	base.err = nil
	repo.List(ctx)

	if got := base.count("List"); got != 1 {
		t.Errorf("expected list to stay cached, got %d calls", got)
	}
}

func TestUpdate_InvalidatesRecordKeys(t *testing.T) {
	a := &testRecord{ID: uuid.New()}
	b := &testRecord{ID: uuid.New()}
	base := newFakeRepository(a, b)
	repo := newTestRepository(t, base)
	ctx := context.Background()

	repo.GetByID(ctx, a.ID.String())
	repo.GetByID(ctx, b.ID.String())

	if _, err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}

	repo.GetByID(ctx, a.ID.String())
	repo.GetByID(ctx, b.ID.String())

	if got := base.count("GetByID"); got != 3 {
		t.Errorf("expected only the updated record to refetch, got %d calls", got)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	base := newFakeRepository()
	base.err = errors.New("db down")
	repo := newTestRepository(t, base)
	ctx := WithQueryKey(context.Background(), "all")

	for i := 0; i < 2; i++ {
		if _, _, err := repo.List(ctx); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := base.count("List"); got != 2 {
		t.Errorf("expected errors to reach the base each time, got %d calls", got)
	}
}

func TestDeleteWhere_InvalidatesEverything(t *testing.T) {
	rec := &testRecord{ID: uuid.New()}
	base := newFakeRepository(rec)
	repo := newTestRepository(t, base)
	ctx := WithQueryKey(context.Background(), "all")

	repo.List(ctx)
	repo.GetByID(context.Background(), rec.ID.String())

	if err := repo.DeleteWhere(context.Background()); err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if got := repo.TrackedKeys(); got != 0 {
		t.Errorf("expected registry to be empty, got %d keys", got)
	}
}

func TestWithQueryKey(t *testing.T) {
	ctx := WithQueryKey(context.Background(), "a")
	ctx = WithQueryKey(ctx, 1)
	ctx = WithQueryKey(ctx)

	parts := queryKeyFromContext(ctx)
	if len(parts) != 2 || parts[0] != "a" || parts[1] != 1 {
		t.Errorf("unexpected parts %v", parts)
	}
	if queryKeyFromContext(context.Background()) != nil {
		t.Error("expected no parts on a bare context")
	}
}
