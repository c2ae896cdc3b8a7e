package driven

import (
	"context"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// ScheduleStore defines the driven port for the per-user schedule mirror.
type ScheduleStore interface {
	// ReplaceAll atomically deletes every lesson for userID and inserts lessons.
	// Concurrent readers observe either the previous partition or the new one.
	ReplaceAll(ctx context.Context, userID int64, lessons []model.Lesson) error

	// Lookup returns the lessons for userID on date, ordered by start time
	// ascending with missing start times last. Returns an empty slice if none.
	Lookup(ctx context.Context, userID int64, date model.Date) ([]model.Lesson, error)

	// DeleteAll removes the whole partition for userID.
	DeleteAll(ctx context.Context, userID int64) error

	// CountByUser returns the number of mirrored lessons for userID.
	CountByUser(ctx context.Context, userID int64) (int, error)
}
