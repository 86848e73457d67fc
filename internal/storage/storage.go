// Package storage holds the raw CV bytes. The bytes are the durable
// artifact; extracted text is always re-derived from them.
package storage

import "context"

// Store is a key-value blob store. Put returns an opaque key; Get returns
// the original bytes unchanged.
type Store interface {
	Put(ctx context.Context, data []byte, mediaType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
