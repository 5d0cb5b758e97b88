package media

import (
	"context"
	"io"
)

// ObjectStore persists uploaded objects and hands back a public reference for them.
type ObjectStore interface {
	// Put stores size bytes of body under key and returns the reference clients use.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	// Delete removes the object behind ref. Missing objects are not an error.
	Delete(ctx context.Context, ref string) error
}
