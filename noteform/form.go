// Package noteform implements the note creation form: pure draft validation
// plus a small state machine that submits through the gateway and refreshes
// every cached list on success.
package noteform

import (
	"context"
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/query"
	"go.uber.org/zap"
)

// FieldError is one failed field rule.
type FieldError = goerrors.FieldError

// Validate checks draft and returns its field errors ordered title, content,
// tag. A valid draft yields none.
func Validate(draft note.Draft) []FieldError {
	return draft.FieldErrors()
}

// Field names a form input.
type Field string

const (
	FieldTitle   Field = note.FieldTitle
	FieldContent Field = note.FieldContent
	FieldTag     Field = note.FieldTag
)

// Phase is the lifecycle stage of a form.
type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
	PhaseClosed     Phase = "closed"
)

// ErrNotEditing is returned by Submit when the form is already submitting or
// has been closed.
var ErrNotEditing = errors.New("noteform: form is not editable")

// Creator creates notes on the backend.
type Creator interface {
	CreateNote(ctx context.Context, draft note.Draft) (note.Note, error)
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context, pred query.Predicate) int
}

// Form is one open creation form.
type Form struct {
	creator     Creator
	invalidator Invalidator
	logger      *zap.Logger
	onCreated   func(note.Note)
	onClose     func()

	mu    sync.Mutex
	draft note.Draft
	errs  []FieldError
	phase Phase
	err   error
}

// Option configures a Form.
type Option func(*Form)

// OnCreated registers a callback run after a note is stored.
func OnCreated(fn func(note.Note)) Option {
	return func(f *Form) { f.onCreated = fn }
}

// OnClose registers a callback run when the form closes, after a successful
// submit or a cancel.
func OnClose(fn func()) Option {
	return func(f *Form) { f.onClose = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New opens a form with the initial draft values.
func New(creator Creator, invalidator Invalidator, opts ...Option) *Form {
	f := &Form{
		creator:     creator,
		invalidator: invalidator,
		logger:      zap.NewNop(),
		phase:       PhaseEditing,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.resetLocked()
	return f
}

// Set changes one field and revalidates the draft.
func (f *Form) Set(field Field, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch field {
	case FieldTitle:
		f.draft.Title = value
	case FieldContent:
		f.draft.Content = value
	case FieldTag:
		f.draft.Tag = note.Tag(value)
	default:
		return
	}
	f.errs = Validate(f.draft)
}

// Draft returns the current values.
func (f *Form) Draft() note.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Errors returns the field errors of the current values.
func (f *Form) Errors() []FieldError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FieldError(nil), f.errs...)
}

// FieldError returns the message for field, or "" when it is valid.
func (f *Form) FieldError(field Field) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.errs {
		if e.Field == string(field) {
			return e.Message
		}
	}
	return ""
}

func (f *Form) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Err returns the error of the last failed submit.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// CanSubmit reports whether the draft is valid and the form is editable.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase == PhaseEditing && len(f.errs) == 0
}

// Submit validates the draft and creates the note. An invalid draft returns a
// validation error without reaching the backend. On success every cached
// notes list is invalidated, the form resets and closes. On failure the
// values are kept and the form stays open with the error in Err.
func (f *Form) Submit(ctx context.Context) (note.Note, error) {
	f.mu.Lock()
	if f.phase != PhaseEditing {
		f.mu.Unlock()
		return note.Note{}, ErrNotEditing
	}
	draft := f.draft
	if errs := Validate(draft); len(errs) > 0 {
		f.errs = errs
		f.mu.Unlock()
		return note.Note{}, note.NewValidationError(errs)
	}
	f.phase = PhaseSubmitting
	f.err = nil
	f.mu.Unlock()

	created, err := f.creator.CreateNote(ctx, draft)
	if err != nil {
		f.logger.Debug("note create failed", zap.Error(err))

		f.mu.Lock()
		if f.phase == PhaseSubmitting {
			f.phase = PhaseEditing
		}
		f.err = err
		if fields, ok := goerrors.GetValidationErrors(err); ok {
			f.errs = fields
		}
		f.mu.Unlock()
		return note.Note{}, err
	}

	matched := f.invalidator.Invalidate(ctx, query.MatchNamespace(note.QueryNamespace))
	f.logger.Debug("note created", zap.Stringer("id", created.ID), zap.Int("invalidated", matched))

	f.mu.Lock()
	f.resetLocked()
	f.phase = PhaseClosed
	f.mu.Unlock()

	if f.onCreated != nil {
		f.onCreated(created)
	}
	if f.onClose != nil {
		f.onClose()
	}
	return created, nil
}

// Cancel closes the form without submitting.
func (f *Form) Cancel() {
	f.mu.Lock()
	if f.phase == PhaseClosed {
		f.mu.Unlock()
		return
	}
	f.phase = PhaseClosed
	f.mu.Unlock()

	if f.onClose != nil {
		f.onClose()
	}
}

func (f *Form) resetLocked() {
	f.draft = note.InitialDraft()
	f.errs = Validate(f.draft)
	f.err = nil
}
