// Package docstore persists rendered documents under stable keys.
package docstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
