package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Snapshot is the transferable state of a Client. It is only meant to be read
// back by Hydrate of the same package version.
type Snapshot[T any] struct {
	CreatedAt time.Time          `msgpack:"created_at"`
	Entries   []SnapshotEntry[T] `msgpack:"entries"`
}

// SnapshotEntry is one dehydrated entry.
type SnapshotEntry[T any] struct {
	Key       Key       `msgpack:"key"`
	Status    Status    `msgpack:"status"`
	Data      T         `msgpack:"data"`
	Error     string    `msgpack:"error,omitempty"`
	UpdatedAt time.Time `msgpack:"updated_at"`

	// Classification of Error, restored on hydration.
	ErrorCategory string `msgpack:"error_category,omitempty"`
	ErrorCode     int    `msgpack:"error_code,omitempty"`
	ErrorTextCode string `msgpack:"error_text_code,omitempty"`
}

// Dehydrate captures every settled entry. Entries still waiting on their first
// response carry nothing worth transferring and are skipped.
func (c *Client[T]) Dehydrate() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot[T]{CreatedAt: c.opts.now()}
	for key, rec := range c.records {
		entry := rec.entry
		if entry.Status == StatusPending {
			continue
		}

		out := SnapshotEntry[T]{
			Key:       key,
			Status:    entry.Status,
			Data:      entry.Data,
			UpdatedAt: entry.UpdatedAt,
		}
		if entry.Err != nil {
			out.Error = errorMessage(entry.Err)
			var gerr *goerrors.Error
			if errors.As(entry.Err, &gerr) {
				out.ErrorCategory = gerr.Category.String()
				out.ErrorCode = gerr.Code
				out.ErrorTextCode = gerr.TextCode
			}
		}
		snap.Entries = append(snap.Entries, out)
	}

	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Key.String() < snap.Entries[j].Key.String()
	})
	return snap
}

// Hydrate seeds the client with snap. Successful entries count as fresh from
// the moment of hydration so no request follows right after the transfer.
// Error entries are stored stale and refetch on their first subscription.
// An entry already holding newer data than the snapshot is left untouched.
func (c *Client[T]) Hydrate(snap Snapshot[T]) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	applied := 0
	for _, in := range snap.Entries {
		if in.Status != StatusSuccess && in.Status != StatusError {
			continue
		}

		rec := c.recordLocked(in.Key)
		if rec.entry.UpdatedAt.After(in.UpdatedAt) {
			continue
		}

		rec.entry.Status = in.Status
		rec.entry.UpdatedAt = in.UpdatedAt
		switch in.Status {
		case StatusSuccess:
			rec.entry.Data = in.Data
			rec.entry.Err = nil
			rec.fresh = true
			rec.freshAt = now.UnixNano()
		case StatusError:
			rec.entry.Err = in.restoreError()
			rec.fresh = false
		}
		applied++
		c.notifyLocked(rec)
	}

	c.opts.logger.Debug("query hydrated",
		zap.Int("entries", len(snap.Entries)),
		zap.Int("applied", applied),
	)
	return applied
}

func (e SnapshotEntry[T]) restoreError() error {
	category := goerrors.CategoryExternal
	if e.ErrorCategory != "" {
		category = goerrors.Category(e.ErrorCategory)
	}
	err := goerrors.New(e.Error, category)
	if e.ErrorCode != 0 {
		err = err.WithCode(e.ErrorCode)
	}
	if e.ErrorTextCode != "" {
		err = err.WithTextCode(e.ErrorTextCode)
	}
	return err
}

// errorMessage drops the category prefix of categorised errors so a hydrated
// error does not stack prefixes on every transfer.
func errorMessage(err error) string {
	var gerr *goerrors.Error
	if errors.As(err, &gerr) {
		return gerr.Message
	}
	return err.Error()
}

const snapshotVersion byte = 1

// ErrCorruptSnapshot is returned when encoded snapshot bytes fail validation.
var ErrCorruptSnapshot = errors.New("query: corrupt snapshot")

// EncodeSnapshot serializes snap as a version byte, a msgpack body and a
// trailing big endian xxhash64 of the body.
func EncodeSnapshot[T any](snap Snapshot[T]) ([]byte, error) {
	body, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("query: encode snapshot: %w", err)
	}

	out := make([]byte, 0, len(body)+9)
	out = append(out, snapshotVersion)
	out = append(out, body...)
	out = binary.BigEndian.AppendUint64(out, xxhash.Sum64(body))
	return out, nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot[T any](data []byte) (Snapshot[T], error) {
	var snap Snapshot[T]

	if len(data) < 9 {
		return snap, fmt.Errorf("%w: %d bytes", ErrCorruptSnapshot, len(data))
	}
	if data[0] != snapshotVersion {
		return snap, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, data[0])
	}

	body := data[1 : len(data)-8]
	sum := binary.BigEndian.Uint64(data[len(data)-8:])
	if xxhash.Sum64(body) != sum {
		return snap, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	if err := msgpack.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("query: decode snapshot: %w", err)
	}
	return snap, nil
}
