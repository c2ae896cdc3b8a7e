package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ScheduleStore = (*ScheduleRepo)(nil)

// ScheduleRepo is the SQLite implementation of the ScheduleStore port interface.
type ScheduleRepo struct {
	db *DB
}

// NewScheduleRepo creates a new ScheduleRepo backed by the given DB.
func NewScheduleRepo(db *DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// ReplaceAll atomically replaces every mirrored lesson for a user.
// It deletes existing rows and inserts the provided lessons in a single transaction.
func (r *ScheduleRepo) ReplaceAll(ctx context.Context, userID int64, lessons []model.Lesson) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const deleteQuery = `DELETE FROM schedule WHERE user_id = ?`
	if _, err := tx.ExecContext(ctx, deleteQuery, userID); err != nil {
		return fmt.Errorf("delete schedule for user %d: %w", userID, err)
	}

	const insertQuery = `
		INSERT INTO schedule (user_id, date, lesson_id, subject_name, start_time, end_time, homework_text, room_number, lesson_theme)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, l := range lessons {
		if _, err := tx.ExecContext(ctx, insertQuery,
			userID, l.Date.String(), l.LessonID, l.Subject,
			nullTimeOfDay(l.Start), nullTimeOfDay(l.End),
			nullString(l.Homework), nullString(l.Room), nullString(l.Topic),
		); err != nil {
			return fmt.Errorf("insert lesson %d for user %d: %w", l.LessonID, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule for user %d: %w", userID, err)
	}

	return nil
}

// Lookup returns the lessons for a user on one date, ordered by start time with
// missing start times last. Lessons sharing a start time keep insertion order.
func (r *ScheduleRepo) Lookup(ctx context.Context, userID int64, date model.Date) ([]model.Lesson, error) {
	const query = `
		SELECT user_id, date, lesson_id, subject_name, start_time, end_time, homework_text, room_number, lesson_theme
		FROM schedule
		WHERE user_id = ? AND date = ?
		ORDER BY start_time IS NULL, start_time, rowid
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID, date.String())
	if err != nil {
		return nil, fmt.Errorf("query schedule for user %d on %s: %w", userID, date, err)
	}
	defer rows.Close()

	lessons := []model.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}

	return lessons, nil
}

// DeleteAll removes every mirrored lesson for a user.
func (r *ScheduleRepo) DeleteAll(ctx context.Context, userID int64) error {
	const query = `DELETE FROM schedule WHERE user_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete schedule for user %d: %w", userID, err)
	}
	return nil
}

// CountByUser returns the number of mirrored lessons for a user.
func (r *ScheduleRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM schedule WHERE user_id = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schedule for user %d: %w", userID, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(s scanner) (*model.Lesson, error) {
	var l model.Lesson
	var date string
	var start, end, homework, room, topic sql.NullString

	err := s.Scan(&l.UserID, &date, &l.LessonID, &l.Subject, &start, &end, &homework, &room, &topic)
	if err != nil {
		return nil, err
	}

	l.Date, err = model.ParseDate(date)
	if err != nil {
		return nil, err
	}

	if l.Start, err = parseNullTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if l.End, err = parseNullTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}

	l.Homework = homework.String
	l.Room = room.String
	l.Topic = topic.String

	return &l, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTimeOfDay(t *model.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func parseNullTimeOfDay(ns sql.NullString) (*model.TimeOfDay, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := model.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
