package model

// Lesson is one scheduled lesson occurrence. The same struct is produced by the
// remote fetch path and by the local mirror, so callers never need to know
// which source a lesson came from.
type Lesson struct {
	UserID   int64
	Date     Date
	LessonID int64
	Subject  string
	Start    *TimeOfDay
	End      *TimeOfDay
	Homework string // newline-joined fragments; empty when none were set
	Room     string
	Topic    string

	// HasMaterials reports that a teacher attached digital homework. Only the
	// remote path knows this; mirror rows always carry false.
	HasMaterials bool
}

// LessonSource identifies where a displayed lesson list came from.
type LessonSource string

const (
	LessonSourceRemote LessonSource = "remote"
	LessonSourceMirror LessonSource = "mirror"
)
