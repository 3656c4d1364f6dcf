package query

import (
	"github.com/goliatone/go-notehub/cache"
)

var keySerializer = cache.NewDefaultKeySerializer()

// Fingerprint identifies one list request. The zero Tag means all tags.
// Fingerprints are compared structurally with ==.
type Fingerprint struct {
	Page  int    `msgpack:"page"`
	Query string `msgpack:"query"`
	Tag   string `msgpack:"tag"`
}

// Normalize clamps Page to the first page.
func (f Fingerprint) Normalize() Fingerprint {
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// Key is a cache key: a namespace plus the request fingerprint.
type Key struct {
	Namespace   string      `msgpack:"namespace"`
	Fingerprint Fingerprint `msgpack:"fingerprint"`
}

// NewKey builds a key in namespace ns.
func NewKey(ns string, fp Fingerprint) Key {
	return Key{Namespace: ns, Fingerprint: fp.Normalize()}
}

// String renders the key as namespace::page::query::tag.
func (k Key) String() string {
	return keySerializer.SerializeKey(k.Namespace, k.Fingerprint.Page, k.Fingerprint.Query, k.Fingerprint.Tag)
}

// Predicate selects keys for invalidation.
type Predicate func(Key) bool

// MatchNamespace selects every key under ns.
func MatchNamespace(ns string) Predicate {
	return func(k Key) bool { return k.Namespace == ns }
}

// MatchKey selects exactly one key.
func MatchKey(key Key) Predicate {
	return func(k Key) bool { return k == key }
}

// MatchAll selects every key.
func MatchAll() Predicate {
	return func(Key) bool { return true }
}
