package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Eraser removes everything stored for a user.
type Eraser struct {
	vault  *TokenVault
	mirror driven.ScheduleStore
	logger *zap.Logger
}

// NewEraser creates an Eraser.
func NewEraser(vault *TokenVault, mirror driven.ScheduleStore, logger *zap.Logger) *Eraser {
	return &Eraser{vault: vault, mirror: mirror, logger: logger.Named("eraser")}
}

// Erase deletes the stored credential and the mirror partition of userID.
// Both deletions are idempotent.
func (e *Eraser) Erase(ctx context.Context, userID int64) error {
	if err := e.vault.Delete(ctx, userID); err != nil {
		return fmt.Errorf("erase credential for user %d: %w", userID, err)
	}
	if err := e.mirror.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("erase schedule for user %d: %w: %w", userID, model.ErrStorageFailure, err)
	}
	e.logger.Info("user data erased", zap.Int64("user_id", userID))
	return nil
}
