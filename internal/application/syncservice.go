package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Sync ranges, in days around today.
const (
	OnDemandSyncDays = 7
	FleetSyncDays    = 10
)

// SyncConfig tunes the recurring fleet pass.
type SyncConfig struct {
	Interval    time.Duration // time between fleet passes
	UserTimeout time.Duration // deadline for one user's sync
	Parallelism int           // users synced concurrently
}

// SyncReport summarizes one fleet pass.
type SyncReport struct {
	PassID   string
	Users    int
	Synced   int
	Failed   int
	Skipped  int // not started because the pass was cancelled
	Lessons  int
	Duration time.Duration
}

// SyncService mirrors remote schedules into the local ScheduleStore, on
// demand after login and on a recurring fleet-wide timer.
type SyncService struct {
	vault  *TokenVault
	client driven.DiaryClient
	mirror driven.ScheduleStore
	cfg    SyncConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSyncService creates a SyncService with all required dependencies.
func NewSyncService(
	vault *TokenVault,
	client driven.DiaryClient,
	mirror driven.ScheduleStore,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncService {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &SyncService{
		vault:  vault,
		client: client,
		mirror: mirror,
		cfg:    cfg,
		logger: logger.Named("sync"),
		now:    time.Now,
	}
}

// WithClock replaces the clock used to determine today. Intended for tests.
func (s *SyncService) WithClock(now func() time.Time) *SyncService {
	s.now = now
	return s
}

// SyncRange fetches [begin, end] through session and replaces userID's mirror
// partition with the result. Nothing is written unless the fetch fully
// succeeded. It returns the number of lessons stored.
func (s *SyncService) SyncRange(ctx context.Context, session *Session, userID int64, begin, end model.Date) (int, error) {
	lessons, dropped, err := session.FetchLessons(ctx, userID, begin, end)
	if err != nil {
		return 0, fmt.Errorf("sync user %d: %w", userID, err)
	}

	if dropped > 0 {
		s.logger.Debug("dropped incomplete events",
			zap.Int64("user_id", userID),
			zap.Int("dropped", dropped),
		)
	}

	if err := s.mirror.ReplaceAll(ctx, userID, lessons); err != nil {
		return 0, fmt.Errorf("sync user %d: %w: %w", userID, model.ErrStorageFailure, err)
	}

	return len(lessons), nil
}

// SyncOnDemand refreshes the mirror for userID over today±7 days. It is run
// once right after a successful login and is bounded by the per-user timeout.
func (s *SyncService) SyncOnDemand(ctx context.Context, session *Session, userID int64) error {
	ctx, cancel := s.userContext(ctx)
	defer cancel()

	today := model.DateOf(s.now())
	n, err := s.SyncRange(ctx, session, userID, today.AddDays(-OnDemandSyncDays), today.AddDays(OnDemandSyncDays))
	if err != nil {
		s.logger.Warn("on-demand sync failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	s.logger.Info("on-demand sync complete", zap.Int64("user_id", userID), zap.Int("lessons", n))
	return nil
}

// Start runs a fleet pass immediately and then on the configured interval.
// It blocks until ctx is cancelled and any pass in flight has finished.
func (s *SyncService) Start(ctx context.Context) {
	if _, err := s.SyncAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("initial sync pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sync pass failed", zap.Error(err))
			}
		}
	}
}

// SyncAll refreshes every user with a stored credential over today±10 days.
// Each user runs under its own timeout with at most Parallelism users in
// flight; one user's failure is logged and counted without affecting the
// rest. Once ctx is cancelled no further users are started.
func (s *SyncService) SyncAll(ctx context.Context) (SyncReport, error) {
	start := time.Now()
	report := SyncReport{PassID: uuid.NewString()}
	logger := s.logger.With(zap.String("pass_id", report.PassID))

	users, err := s.vault.Users(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}
	report.Users = len(users)

	today := model.DateOf(s.now())
	begin, end := today.AddDays(-FleetSyncDays), today.AddDays(FleetSyncDays)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)

	for _, userID := range users {
		if ctx.Err() != nil {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}

			n, err := s.syncUser(ctx, userID, begin, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				logger.Warn("user sync failed", zap.Int64("user_id", userID), zap.Error(err))
				return nil
			}
			report.Synced++
			report.Lessons += n
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start).Round(time.Millisecond)
	logger.Info("sync pass complete",
		zap.Int("users", report.Users),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("lessons", report.Lessons),
		zap.Duration("duration", report.Duration),
	)

	return report, ctx.Err()
}

func (s *SyncService) userContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.UserTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.UserTimeout)
}

func (s *SyncService) syncUser(ctx context.Context, userID int64, begin, end model.Date) (int, error) {
	uctx, cancel := s.userContext(ctx)
	defer cancel()

	cred, err := s.vault.Load(uctx, userID)
	if err != nil {
		return 0, err
	}
	if cred.Expired(s.now()) {
		return 0, fmt.Errorf("sync user %d: %w: credential expired", userID, model.ErrNeedsLogin)
	}
	return s.SyncRange(uctx, NewSession(s.client, cred), userID, begin, end)
}
