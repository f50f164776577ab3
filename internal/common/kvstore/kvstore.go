// Package kvstore abstracts the key-value storage used for funnel drafts,
// visitor identity and the analytics event log, so the core logic runs
// unchanged against Redis in production and an in-memory store in tests.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the storage capability required by the funnel and analytics engines.
// List values are append-only with a bounded length: PushTrim appends and
// drops the oldest entries beyond maxLen.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	PushTrim(ctx context.Context, key, value string, maxLen int64) error
	List(ctx context.Context, key string) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)
}
