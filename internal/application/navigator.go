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

// NavState is the calendar navigation state of a conversation. A nil NavState
// means nothing has been shown yet.
type NavState interface {
	navState()
}

// ShowingWindow displays the calendar page starting at Offset.
type ShowingWindow struct {
	Offset int
}

// ShowingDayLessons displays the lesson list for Date. Lessons is kept
// verbatim so indices chosen from the rendered list stay valid.
type ShowingDayLessons struct {
	Date    model.Date
	Lessons []model.Lesson
	Source  model.LessonSource
}

// ShowingLessonDetail displays Lessons[Index].
type ShowingLessonDetail struct {
	Date    model.Date
	Lessons []model.Lesson
	Source  model.LessonSource
	Index   int
}

func (ShowingWindow) navState()       {}
func (ShowingDayLessons) navState()   {}
func (ShowingLessonDetail) navState() {}

// NavEvent is a navigation input decoded from a button payload.
type NavEvent interface {
	Payload
	navEvent()
}

// PagePrev moves the calendar one page left from Offset.
type PagePrev struct{ Offset int }

// PageNext moves the calendar one page right from Offset.
type PageNext struct{ Offset int }

// PickDay selects the window day at Index.
type PickDay struct{ Index int }

// PickLesson selects the lesson at Index in the displayed list.
type PickLesson struct{ Index int }

// BackTarget names where a Back event returns to.
type BackTarget string

const (
	BackToLessons  BackTarget = "lessons"
	BackToSchedule BackTarget = "schedule"
)

// Back returns to the lesson list or to the current-week calendar page.
type Back struct{ To BackTarget }

func (PagePrev) navEvent()   {}
func (PageNext) navEvent()   {}
func (PickDay) navEvent()    {}
func (PickLesson) navEvent() {}
func (Back) navEvent()       {}

// ViewKind selects which screen a View describes.
type ViewKind int

const (
	ViewCalendar ViewKind = iota + 1
	ViewDayLessons
	ViewLessonDetail
)

// View is the data needed to render the state a navigation event produced.
type View struct {
	Kind ViewKind

	// ViewCalendar
	Window Window
	Offset int

	// ViewDayLessons and ViewLessonDetail
	Date    model.Date
	Lessons []model.Lesson
	Source  model.LessonSource
	Empty   bool // no lessons from either source

	// ViewLessonDetail
	Index  int
	Lesson model.Lesson
}

// Navigator is the calendar navigation state machine. For a day pick it
// prefers a live fetch and falls back to the local mirror on any failure.
type Navigator struct {
	resolver     *SessionResolver
	mirror       driven.ScheduleStore
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewNavigator creates a Navigator. fetchTimeout bounds the live fetch for a
// picked day.
func NewNavigator(resolver *SessionResolver, mirror driven.ScheduleStore, fetchTimeout time.Duration, logger *zap.Logger) *Navigator {
	return &Navigator{
		resolver:     resolver,
		mirror:       mirror,
		fetchTimeout: fetchTimeout,
		logger:       logger.Named("navigator"),
		now:          time.Now,
	}
}

// WithClock replaces the clock used to compute the window. Intended for tests.
func (n *Navigator) WithClock(now func() time.Time) *Navigator {
	n.now = now
	return n
}

// Today returns the current date according to the navigator's clock.
func (n *Navigator) Today() model.Date {
	return model.DateOf(n.now())
}

// Handle applies ev to conv and returns what to render. conv.Nav is updated
// only when Handle succeeds; on error the conversation is left as it was.
// The caller must hold the conversation lock.
func (n *Navigator) Handle(ctx context.Context, conv *Conversation, ev NavEvent) (View, error) {
	window := ComputeWindow(n.Today())

	switch e := ev.(type) {
	case PagePrev:
		if err := checkOffset(e.Offset); err != nil {
			return View{}, err
		}
		return n.showWindow(conv, window, PageLeft(e.Offset)), nil

	case PageNext:
		if err := checkOffset(e.Offset); err != nil {
			return View{}, err
		}
		return n.showWindow(conv, window, PageRight(e.Offset)), nil

	case PickDay:
		return n.pickDay(ctx, conv, window, e.Index)

	case PickLesson:
		return n.pickLesson(conv, e.Index)

	case Back:
		return n.back(conv, window, e.To)

	default:
		return View{}, fmt.Errorf("%w: navigation event %T", model.ErrUnknownEvent, ev)
	}
}

func checkOffset(offset int) error {
	if offset < 0 || offset > MaxOffset {
		return fmt.Errorf("%w: offset %d not in [0, %d]", model.ErrInputOutOfRange, offset, MaxOffset)
	}
	return nil
}

func (n *Navigator) showWindow(conv *Conversation, window Window, offset int) View {
	conv.Nav = ShowingWindow{Offset: offset}
	return View{Kind: ViewCalendar, Window: window, Offset: offset}
}

func (n *Navigator) pickDay(ctx context.Context, conv *Conversation, window Window, index int) (View, error) {
	date, err := window.Day(index)
	if err != nil {
		return View{}, err
	}

	lessons, source, err := n.lessonsFor(ctx, conv, date)
	if err != nil {
		return View{}, err
	}

	conv.Nav = ShowingDayLessons{Date: date, Lessons: lessons, Source: source}
	return View{
		Kind:    ViewDayLessons,
		Date:    date,
		Lessons: lessons,
		Source:  source,
		Empty:   len(lessons) == 0,
	}, nil
}

// lessonsFor fetches date live, falling back to the mirror when no session can
// be resolved or the fetch fails for any reason.
func (n *Navigator) lessonsFor(ctx context.Context, conv *Conversation, date model.Date) ([]model.Lesson, model.LessonSource, error) {
	logger := n.logger.With(zap.Int64("user_id", conv.UserID), zap.Stringer("date", date))

	lessons, err := n.fetchLive(ctx, conv, date)
	if err == nil {
		return lessons, model.LessonSourceRemote, nil
	}
	logger.Info("serving day from mirror", zap.String("reason", fallbackReason(err)), zap.Error(err))

	lessons, err = n.mirror.Lookup(ctx, conv.UserID, date)
	if err != nil {
		return nil, "", fmt.Errorf("%w: mirror lookup: %w", model.ErrStorageFailure, err)
	}
	return lessons, model.LessonSourceMirror, nil
}

func (n *Navigator) fetchLive(ctx context.Context, conv *Conversation, date model.Date) ([]model.Lesson, error) {
	session := conv.Session
	if session == nil {
		s, err := n.resolver.Resolve(ctx, conv.UserID)
		if err != nil {
			return nil, err
		}
		session = s
		conv.Session = s
	}

	fctx := ctx
	if n.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, n.fetchTimeout)
		defer cancel()
	}

	fetched, _, err := session.FetchLessons(fctx, conv.UserID, date, date)
	if err != nil {
		if errors.Is(err, model.ErrCredentialInvalid) {
			conv.Session = nil
		}
		return nil, err
	}

	lessons := make([]model.Lesson, 0, len(fetched))
	for _, l := range fetched {
		if l.Date == date {
			lessons = append(lessons, l)
		}
	}
	return lessons, nil
}

// fallbackReason classifies why a live fetch was skipped or failed. Every
// reason leads to the same mirror fallback; it only feeds the log.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNeedsLogin):
		return "needs_login"
	case errors.Is(err, model.ErrCredentialInvalid):
		return "credential_rejected"
	case errors.Is(err, model.ErrRemoteDataIncomplete):
		return "no_dependent_or_incomplete"
	case errors.Is(err, model.ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, model.ErrStorageFailure):
		return "storage_failure"
	default:
		return "unknown"
	}
}

func (n *Navigator) pickLesson(conv *Conversation, index int) (View, error) {
	var date model.Date
	var lessons []model.Lesson
	var source model.LessonSource

	switch s := conv.Nav.(type) {
	case ShowingDayLessons:
		date, lessons, source = s.Date, s.Lessons, s.Source
	case ShowingLessonDetail:
		date, lessons, source = s.Date, s.Lessons, s.Source
	default:
		return View{}, fmt.Errorf("%w: no lesson list is displayed", model.ErrInputOutOfRange)
	}

	if index < 0 || index >= len(lessons) {
		return View{}, fmt.Errorf("%w: lesson index %d not in [0, %d)", model.ErrInputOutOfRange, index, len(lessons))
	}

	conv.Nav = ShowingLessonDetail{Date: date, Lessons: lessons, Source: source, Index: index}
	return View{
		Kind:    ViewLessonDetail,
		Date:    date,
		Lessons: lessons,
		Source:  source,
		Index:   index,
		Lesson:  lessons[index],
	}, nil
}

func (n *Navigator) back(conv *Conversation, window Window, to BackTarget) (View, error) {
	switch to {
	case BackToSchedule:
		return n.showWindow(conv, window, CurrentWeekOffset), nil

	case BackToLessons:
		var next ShowingDayLessons
		switch s := conv.Nav.(type) {
		case ShowingLessonDetail:
			next = ShowingDayLessons{Date: s.Date, Lessons: s.Lessons, Source: s.Source}
		case ShowingDayLessons:
			next = s
		default:
			return View{}, fmt.Errorf("%w: no lesson list to return to", model.ErrInputOutOfRange)
		}

		conv.Nav = next
		return View{
			Kind:    ViewDayLessons,
			Date:    next.Date,
			Lessons: next.Lessons,
			Source:  next.Source,
			Empty:   len(next.Lessons) == 0,
		}, nil

	default:
		return View{}, fmt.Errorf("%w: back target %q", model.ErrUnknownEvent, to)
	}
}
