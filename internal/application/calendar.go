package application

import (
	"fmt"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// Calendar window geometry. The window spans last, current and next ISO week;
// the visible page is PageSize days starting at an offset into it.
const (
	WindowDays        = 21
	PageSize          = 5
	CurrentWeekOffset = 7
	MaxOffset         = WindowDays - PageSize
)

// Window is 21 consecutive dates starting on the Monday of the previous week.
type Window [WindowDays]model.Date

// ComputeWindow returns the window anchored on today: index 0 is the Monday
// one week before today's ISO week, index 7 is that week's Monday and index
// 20 is the Sunday one week after.
func ComputeWindow(today model.Date) Window {
	first := ISOWeekMonday(today).AddDays(-7)

	var w Window
	for i := range w {
		w[i] = first.AddDays(i)
	}
	return w
}

// Day returns the date at index, or model.ErrInputOutOfRange.
func (w Window) Day(index int) (model.Date, error) {
	if index < 0 || index >= WindowDays {
		return model.Date{}, fmt.Errorf("%w: day index %d not in [0, %d)", model.ErrInputOutOfRange, index, WindowDays)
	}
	return w[index], nil
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d model.Date) bool {
	return !d.Before(w[0]) && !d.After(w[WindowDays-1])
}

// VisibleDays returns the page of dates starting at offset, clamped to the window.
func (w Window) VisibleDays(offset int) []model.Date {
	offset = ClampOffset(offset)
	return w[offset : offset+PageSize]
}

// ClampOffset bounds offset to [0, MaxOffset] so a page never reads past the window.
func ClampOffset(offset int) int {
	return max(0, min(offset, MaxOffset))
}

// PageLeft returns the offset one page earlier, stopping at 0.
func PageLeft(offset int) int {
	return max(0, ClampOffset(offset)-PageSize)
}

// PageRight returns the offset one page later, stopping at MaxOffset.
func PageRight(offset int) int {
	return min(ClampOffset(offset)+PageSize, MaxOffset)
}

// HasPrev reports whether a page exists before offset.
func HasPrev(offset int) bool {
	return ClampOffset(offset) > 0
}

// HasNext reports whether a page exists after offset.
func HasNext(offset int) bool {
	return ClampOffset(offset) < MaxOffset
}

// ISOWeekMonday returns the Monday of d's ISO week.
func ISOWeekMonday(d model.Date) model.Date {
	return d.AddDays(-((int(d.Weekday()) + 6) % 7))
}
