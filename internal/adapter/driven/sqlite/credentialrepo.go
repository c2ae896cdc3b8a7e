package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// It only ever sees sealed bytes; the application seals before Put and opens after Get.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Put stores or replaces the sealed credential for userID.
func (r *CredentialRepo) Put(ctx context.Context, userID int64, sealed []byte) error {
	const query = `
		INSERT INTO credentials (user_id, sealed, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID, sealed); err != nil {
		return fmt.Errorf("put credential for user %d: %w", userID, err)
	}
	return nil
}

// Get returns the sealed credential for userID, or (nil, false, nil) if none exists.
func (r *CredentialRepo) Get(ctx context.Context, userID int64) ([]byte, bool, error) {
	const query = `SELECT sealed FROM credentials WHERE user_id = ?`

	var sealed []byte
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get credential for user %d: %w", userID, err)
	}
	return sealed, true, nil
}

// Delete removes the credential for userID.
func (r *CredentialRepo) Delete(ctx context.Context, userID int64) error {
	const query = `DELETE FROM credentials WHERE user_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete credential for user %d: %w", userID, err)
	}
	return nil
}

// ListUserIDs returns every user with a stored credential, ordered by id.
func (r *CredentialRepo) ListUserIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM credentials ORDER BY user_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credential users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan credential user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential users: %w", err)
	}

	return ids, nil
}
