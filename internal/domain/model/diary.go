package model

import "time"

// Profile is the authenticated account as seen by the diary service.
type Profile struct {
	ID   int64
	Role string
}

// Family links a guardian profile to the students it may act for.
type Family struct {
	Role       string
	Dependents []Dependent
}

// Dependent is a student record linked to the authenticated account.
type Dependent struct {
	ID         int64
	PersonGUID string
	Name       string
}

// Event is one schedule entry as returned by the diary service. Any field may
// be missing on the wire; incomplete events are filtered before they become
// lessons.
type Event struct {
	ID                int64
	Subject           string
	StartAt           *time.Time
	FinishAt          *time.Time
	HomeworkFragments []string
	Room              string
	Topic             string
	HasMaterials      bool
}

// IsComplete reports whether e carries everything needed to become a Lesson.
func (e Event) IsComplete() bool {
	return e.Subject != "" && e.StartAt != nil && e.FinishAt != nil
}
