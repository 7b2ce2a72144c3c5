// Package blob defines the screenshot storage contract and its
// implementations. Stored objects are addressed by key on write and by
// public URL on delete, mirroring how references are persisted on
// snapshots and history rows.
package blob

import "context"

// Store is the blob storage contract used for screenshot lifecycle.
//
// Delete is idempotent: deleting a missing or malformed reference logs and
// returns nil, so cascade deletes never fail halfway through.
type Store interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object behind a public URL previously returned by Put.
	Delete(ctx context.Context, publicURL string) error
}
