package diary

import (
	"time"
)

// Request and response bodies of the diary service REST API.

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type smsRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type tokenJSON struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type challengeJSON struct {
	ID        string `json:"id"`
	ExpiresIn int64  `json:"expires_in"`
}

// authResponse is returned by both /auth/login and /auth/sms. A login that
// needs a second factor carries Challenge instead of Token.
type authResponse struct {
	Token     *tokenJSON     `json:"token"`
	Challenge *challengeJSON `json:"challenge"`
}

type profileJSON struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type familyJSON struct {
	Profile  profileJSON `json:"profile"`
	Children []childJSON `json:"children"`
}

type childJSON struct {
	ID             int64  `json:"id"`
	ContingentGUID string `json:"contingent_guid"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
}

type eventsResponse struct {
	Response []eventJSON `json:"response"`
}

type eventJSON struct {
	ID          int64         `json:"id"`
	SubjectName string        `json:"subject_name"`
	StartAt     *time.Time    `json:"start_at"`
	FinishAt    *time.Time    `json:"finish_at"`
	Homework    *homeworkJSON `json:"homework"`
	RoomNumber  string        `json:"room_number"`
	LessonTheme string        `json:"lesson_theme"`
	Materials   []any         `json:"materials"`
}

type homeworkJSON struct {
	Descriptions []string `json:"descriptions"`
}

type errorResponse struct {
	Message string `json:"message"`
}
