package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Session is an authenticated handle on the diary service for one credential.
type Session struct {
	client driven.DiaryClient
	cred   model.Credential
}

// NewSession binds cred to client. The credential is not checked; call Verify
// for that.
func NewSession(client driven.DiaryClient, cred model.Credential) *Session {
	return &Session{client: client, cred: cred}
}

// Credential returns the credential the session was built with.
func (s *Session) Credential() model.Credential {
	return s.cred
}

// Verify performs one cheap authenticated call to confirm the credential is
// still accepted.
func (s *Session) Verify(ctx context.Context) error {
	profiles, err := s.client.FetchProfiles(ctx, s.cred)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return fmt.Errorf("%w: account has no profiles", model.ErrRemoteDataIncomplete)
	}
	return nil
}

// FetchLessons walks profile, family and first dependent, fetches the events
// for [begin, end] and projects the complete ones into lessons. dropped counts
// the incomplete events that were discarded.
func (s *Session) FetchLessons(ctx context.Context, userID int64, begin, end model.Date) (lessons []model.Lesson, dropped int, err error) {
	profiles, err := s.client.FetchProfiles(ctx, s.cred)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, 0, fmt.Errorf("%w: account has no profiles", model.ErrRemoteDataIncomplete)
	}

	family, err := s.client.FetchFamily(ctx, s.cred, profiles[0].ID)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch family: %w", err)
	}
	if len(family.Dependents) == 0 {
		return nil, 0, fmt.Errorf("%w: profile %d has no dependent", model.ErrRemoteDataIncomplete, profiles[0].ID)
	}

	events, err := s.client.FetchEvents(ctx, s.cred, family.Role, family.Dependents[0], begin, end)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch events: %w", err)
	}

	lessons, dropped = ProjectEvents(userID, events)
	return lessons, dropped, nil
}

// ProjectEvents converts complete events into lessons owned by userID.
// Events without a subject or either timestamp are dropped, as are repeats of
// a lesson id already seen on the same date. The result is ordered by date and
// start time; events sharing both keep their remote order.
func ProjectEvents(userID int64, events []model.Event) (lessons []model.Lesson, dropped int) {
	type key struct {
		date model.Date
		id   int64
	}
	seen := make(map[key]bool, len(events))
	lessons = make([]model.Lesson, 0, len(events))

	for _, e := range events {
		if !e.IsComplete() {
			dropped++
			continue
		}

		date := model.DateOf(*e.StartAt)
		k := key{date: date, id: e.ID}
		if seen[k] {
			dropped++
			continue
		}
		seen[k] = true

		start := model.TimeOfDayOf(*e.StartAt)
		end := model.TimeOfDayOf(*e.FinishAt)
		lessons = append(lessons, model.Lesson{
			UserID:       userID,
			Date:         date,
			LessonID:     e.ID,
			Subject:      e.Subject,
			Start:        &start,
			End:          &end,
			Homework:     strings.Join(e.HomeworkFragments, "\n"),
			Room:         e.Room,
			Topic:        e.Topic,
			HasMaterials: e.HasMaterials,
		})
	}

	slices.SortStableFunc(lessons, func(a, b model.Lesson) int {
		if a.Date != b.Date {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		switch {
		case a.Start.Before(*b.Start):
			return -1
		case b.Start.Before(*a.Start):
			return 1
		}
		return 0
	})

	return lessons, dropped
}
