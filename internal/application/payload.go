package application

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// Payload is a decoded button payload: a NavEvent, an Action or Noop.
type Payload interface {
	payload()
}

// Action is a top-level menu action.
type Action string

const (
	ActionSchedule Action = "schedule"
	ActionErase    Action = "erase"
)

// Noop is carried by buttons that only display a label.
type Noop struct{}

func (PagePrev) payload()   {}
func (PageNext) payload()   {}
func (PickDay) payload()    {}
func (PickLesson) payload() {}
func (Back) payload()       {}
func (Action) payload()     {}
func (Noop) payload()       {}

// EncodePayload returns the wire form of p. ParsePayload(EncodePayload(p)) == p
// for every Payload.
func EncodePayload(p Payload) string {
	switch v := p.(type) {
	case PickDay:
		return "day:" + strconv.Itoa(v.Index)
	case PagePrev:
		return "page:prev:" + strconv.Itoa(v.Offset)
	case PageNext:
		return "page:next:" + strconv.Itoa(v.Offset)
	case PickLesson:
		return "lesson:" + strconv.Itoa(v.Index)
	case Back:
		return "back:" + string(v.To)
	case Action:
		return "action:" + string(v)
	case Noop:
		return "noop"
	default:
		return ""
	}
}

// ParsePayload decodes a button payload. Anything it does not recognize is
// model.ErrUnknownEvent.
func ParsePayload(s string) (Payload, error) {
	parts := strings.Split(s, ":")

	switch {
	case len(parts) == 1 && parts[0] == "noop":
		return Noop{}, nil

	case len(parts) == 2 && parts[0] == "day":
		n, err := parseInt(s, parts[1])
		if err != nil {
			return nil, err
		}
		return PickDay{Index: n}, nil

	case len(parts) == 2 && parts[0] == "lesson":
		n, err := parseInt(s, parts[1])
		if err != nil {
			return nil, err
		}
		return PickLesson{Index: n}, nil

	case len(parts) == 3 && parts[0] == "page":
		n, err := parseInt(s, parts[2])
		if err != nil {
			return nil, err
		}
		switch parts[1] {
		case "prev":
			return PagePrev{Offset: n}, nil
		case "next":
			return PageNext{Offset: n}, nil
		}

	case len(parts) == 2 && parts[0] == "back":
		switch to := BackTarget(parts[1]); to {
		case BackToLessons, BackToSchedule:
			return Back{To: to}, nil
		}

	case len(parts) == 2 && parts[0] == "action":
		switch a := Action(parts[1]); a {
		case ActionSchedule, ActionErase:
			return a, nil
		}
	}

	return nil, fmt.Errorf("%w: payload %q", model.ErrUnknownEvent, s)
}

func parseInt(payload, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, fmt.Errorf("%w: payload %q", model.ErrUnknownEvent, payload)
	}
	return n, nil
}
