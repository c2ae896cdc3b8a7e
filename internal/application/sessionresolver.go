package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// LoginAttempt is the outcome of a successful username/password step. Exactly
// one field is set: Session when login completed, Challenge when a second
// factor is still required.
type LoginAttempt struct {
	Session   *Session
	Challenge *model.Challenge
}

// SessionResolver turns a user id into a verified Session, or runs the
// interactive login exchange when none exists.
type SessionResolver struct {
	vault   *TokenVault
	client  driven.DiaryClient
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionResolver creates a SessionResolver. timeout bounds every remote
// exchange it performs.
func NewSessionResolver(vault *TokenVault, client driven.DiaryClient, timeout time.Duration, logger *zap.Logger) *SessionResolver {
	return &SessionResolver{
		vault:   vault,
		client:  client,
		timeout: timeout,
		logger:  logger.Named("session"),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry checks. Intended for tests.
func (r *SessionResolver) WithClock(now func() time.Time) *SessionResolver {
	r.now = now
	return r
}

// Resolve returns a verified Session for userID. Any failure to produce one,
// whether no credential, an undecryptable one or a failed verification call,
// is reported as model.ErrNeedsLogin wrapping the cause. Storage errors are
// returned as model.ErrStorageFailure.
func (r *SessionResolver) Resolve(ctx context.Context, userID int64) (*Session, error) {
	cred, err := r.vault.Load(ctx, userID)
	switch {
	case errors.Is(err, model.ErrNeedsLogin):
		return nil, err
	case errors.Is(err, model.ErrCredentialInvalid):
		r.logger.Warn("stored credential unusable", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", model.ErrNeedsLogin, err)
	case err != nil:
		return nil, err
	}

	if cred.Expired(r.now()) {
		r.logger.Info("stored credential expired", zap.Int64("user_id", userID), zap.Time("expires_at", cred.ExpiresAt))
		return nil, fmt.Errorf("%w: %w: credential expired", model.ErrNeedsLogin, model.ErrCredentialInvalid)
	}

	session := NewSession(r.client, cred)

	vctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := session.Verify(vctx); err != nil {
		r.logger.Info("stored credential failed verification", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: verify: %w", model.ErrNeedsLogin, err)
	}
	return session, nil
}

// Restore rebuilds the Session for userID from its stored credential without
// contacting the diary service. It returns model.ErrNeedsLogin when nothing is
// stored and model.ErrCredentialInvalid when the stored value cannot be opened.
func (r *SessionResolver) Restore(ctx context.Context, userID int64) (*Session, error) {
	cred, err := r.vault.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewSession(r.client, cred), nil
}

// Login runs the username/password step. When the service issues a
// credential it is sealed and persisted before the Session is returned.
// Every failure is model.ErrLoginFailed and leaves nothing persisted.
func (r *SessionResolver) Login(ctx context.Context, userID int64, username, password string) (LoginAttempt, error) {
	lctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.client.Login(lctx, username, password)
	if err != nil {
		r.logger.Info("login rejected", zap.Int64("user_id", userID), zap.Error(err))
		return LoginAttempt{}, fmt.Errorf("%w: %w", model.ErrLoginFailed, err)
	}

	if res.Challenge != nil {
		r.logger.Info("login requires second factor", zap.Int64("user_id", userID))
		return LoginAttempt{Challenge: res.Challenge}, nil
	}
	if res.Credential == nil {
		return LoginAttempt{}, fmt.Errorf("%w: %w: no credential issued", model.ErrLoginFailed, model.ErrRemoteDataIncomplete)
	}

	session, err := r.persist(ctx, userID, *res.Credential)
	if err != nil {
		return LoginAttempt{}, err
	}
	return LoginAttempt{Session: session}, nil
}

// CompleteChallenge submits the second-factor code. An expired challenge is
// rejected without contacting the service. On success the credential is
// persisted before the Session is returned.
func (r *SessionResolver) CompleteChallenge(ctx context.Context, userID int64, challenge model.Challenge, code string) (*Session, error) {
	if challenge.Expired(r.now()) {
		r.logger.Info("challenge expired", zap.Int64("user_id", userID), zap.Time("expires_at", challenge.ExpiresAt))
		return nil, fmt.Errorf("%w: %w: challenge expired", model.ErrLoginFailed, model.ErrCredentialInvalid)
	}

	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cred, err := r.client.CompleteChallenge(cctx, challenge, code)
	if err != nil {
		r.logger.Info("challenge rejected", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", model.ErrLoginFailed, err)
	}
	return r.persist(ctx, userID, cred)
}

func (r *SessionResolver) persist(ctx context.Context, userID int64, cred model.Credential) (*Session, error) {
	if err := r.vault.Save(ctx, userID, cred); err != nil {
		r.logger.Error("persist credential", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", model.ErrLoginFailed, err)
	}
	r.logger.Info("user authenticated", zap.Int64("user_id", userID))
	return NewSession(r.client, cred), nil
}

func (r *SessionResolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
