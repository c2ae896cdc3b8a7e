// Package application contains use-case orchestration services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// TokenVault seals credentials and persists them, one row per user. The
// cipher is injected so the key is loaded once at startup and handed down.
type TokenVault struct {
	sealer driven.Sealer
	store  driven.CredentialStore
}

// NewTokenVault creates a TokenVault with the given sealer and credential store.
func NewTokenVault(sealer driven.Sealer, store driven.CredentialStore) *TokenVault {
	return &TokenVault{sealer: sealer, store: store}
}

// Encrypt serializes cred to JSON and seals it.
func (v *TokenVault) Encrypt(cred model.Credential) ([]byte, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	sealed, err := v.sealer.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}
	return sealed, nil
}

// Decrypt opens sealed and decodes the credential. Any failure is reported as
// model.ErrCredentialInvalid and the zero Credential is returned.
func (v *TokenVault) Decrypt(sealed []byte) (model.Credential, error) {
	plaintext, err := v.sealer.Open(sealed)
	if err != nil {
		if errors.Is(err, model.ErrCredentialInvalid) {
			return model.Credential{}, err
		}
		return model.Credential{}, fmt.Errorf("%w: %w", model.ErrCredentialInvalid, err)
	}

	var cred model.Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return model.Credential{}, fmt.Errorf("%w: decode: %w", model.ErrCredentialInvalid, err)
	}
	if cred.AccessToken == "" {
		return model.Credential{}, fmt.Errorf("%w: empty access token", model.ErrCredentialInvalid)
	}
	return cred, nil
}

// Put stores sealed for userID, replacing any previous value.
func (v *TokenVault) Put(ctx context.Context, userID int64, sealed []byte) error {
	if err := v.store.Put(ctx, userID, sealed); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	return nil
}

// Get returns the sealed credential for userID; ok is false when none is stored.
func (v *TokenVault) Get(ctx context.Context, userID int64) (sealed []byte, ok bool, err error) {
	sealed, ok, err = v.store.Get(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	return sealed, ok, nil
}

// Delete removes the credential for userID. Missing rows are not an error.
func (v *TokenVault) Delete(ctx context.Context, userID int64) error {
	if err := v.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	return nil
}

// Save encrypts cred and stores it for userID.
func (v *TokenVault) Save(ctx context.Context, userID int64, cred model.Credential) error {
	sealed, err := v.Encrypt(cred)
	if err != nil {
		return err
	}
	return v.Put(ctx, userID, sealed)
}

// Load returns the decrypted credential for userID. A missing row yields
// model.ErrNeedsLogin; an undecryptable one yields model.ErrCredentialInvalid.
func (v *TokenVault) Load(ctx context.Context, userID int64) (model.Credential, error) {
	sealed, ok, err := v.Get(ctx, userID)
	if err != nil {
		return model.Credential{}, err
	}
	if !ok {
		return model.Credential{}, fmt.Errorf("%w: no stored credential for user %d", model.ErrNeedsLogin, userID)
	}
	return v.Decrypt(sealed)
}

// Users returns every user with a stored credential.
func (v *TokenVault) Users(ctx context.Context) ([]int64, error) {
	ids, err := v.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	return ids, nil
}
