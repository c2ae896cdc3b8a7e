package driven

import "context"

// CredentialStore defines the driven port for sealed credential persistence.
// It stores opaque sealed bytes, one row per user; sealing and unsealing are
// the Sealer's job.
type CredentialStore interface {
	// Put stores or replaces the sealed credential for userID.
	Put(ctx context.Context, userID int64, sealed []byte) error

	// Get returns the sealed credential for userID.
	// Returns (nil, false, nil) if none is stored.
	Get(ctx context.Context, userID int64) ([]byte, bool, error)

	// Delete removes the credential for userID. Deleting a missing row is not an error.
	Delete(ctx context.Context, userID int64) error

	// ListUserIDs returns every user with a stored credential, in ascending order.
	ListUserIDs(ctx context.Context) ([]int64, error)
}
