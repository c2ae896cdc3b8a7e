package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ChatEventRequest is the JSON body the chat transport posts for one event.
type ChatEventRequest struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	MessageID int64  `json:"message_id"`
	Kind      string `json:"kind"`
	Command   string `json:"command"`
	Text      string `json:"text"`
	Payload   string `json:"payload"`
}

// ChatEventResponse lists what the transport should send or delete, in order.
type ChatEventResponse struct {
	Renders []RenderResponse `json:"renders"`
}

// RenderResponse is the JSON representation of one render request.
type RenderResponse struct {
	Kind      string             `json:"kind"`
	Text      string             `json:"text,omitempty"`
	Image     string             `json:"image,omitempty"`
	Buttons   [][]ButtonResponse `json:"buttons,omitempty"`
	MessageID int64              `json:"message_id,omitempty"`
}

// ButtonResponse is an inline button. Payload must be echoed back unchanged
// when the user presses it.
type ButtonResponse struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// LessonResponse is the JSON representation of a mirrored lesson.
type LessonResponse struct {
	LessonID int64  `json:"lesson_id"`
	Subject  string `json:"subject"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Homework string `json:"homework"`
	Room     string `json:"room"`
	Topic    string `json:"topic"`
}

// ScheduleResponse is one user's mirrored lessons for a date.
type ScheduleResponse struct {
	UserID       int64            `json:"user_id"`
	Date         string           `json:"date"`
	Lessons      []LessonResponse `json:"lessons"`
	TotalLessons int              `json:"total_lessons"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toChatEvent converts a request body to a domain ChatEvent for chatID.
func toChatEvent(chatID int64, req ChatEventRequest) model.ChatEvent {
	return model.ChatEvent{
		ChatID:    chatID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		MessageID: req.MessageID,
		Kind:      model.ChatEventKind(req.Kind),
		Command:   req.Command,
		Text:      req.Text,
		Payload:   req.Payload,
	}
}

// toChatEventResponse converts domain render requests to their JSON representation.
func toChatEventResponse(renders []model.RenderRequest) ChatEventResponse {
	resp := ChatEventResponse{Renders: make([]RenderResponse, 0, len(renders))}
	for _, r := range renders {
		var rows [][]ButtonResponse
		for _, row := range r.Buttons {
			buttons := make([]ButtonResponse, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, ButtonResponse{Label: b.Label, Payload: b.Payload})
			}
			rows = append(rows, buttons)
		}
		resp.Renders = append(resp.Renders, RenderResponse{
			Kind:      string(r.Kind),
			Text:      r.Text,
			Image:     r.Image,
			Buttons:   rows,
			MessageID: r.MessageID,
		})
	}
	return resp
}

// toLessonResponse converts a domain Lesson to its JSON representation.
func toLessonResponse(l model.Lesson) LessonResponse {
	resp := LessonResponse{
		LessonID: l.LessonID,
		Subject:  l.Subject,
		Homework: l.Homework,
		Room:     l.Room,
		Topic:    l.Topic,
	}
	if l.Start != nil {
		resp.Start = l.Start.String()
	}
	if l.End != nil {
		resp.End = l.End.String()
	}
	return resp
}
