// Package httphandler is the HTTP driving adapter: it bridges the chat
// transport's webhook into the ChatService and serves a small read API.
package httphandler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	maxEventBodyBytes   = 64 << 10
)

// ChatHandler processes one chat event into render requests.
// *application.ChatService satisfies it.
type ChatHandler interface {
	Handle(ctx context.Context, ev model.ChatEvent) ([]model.RenderRequest, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	chat   ChatHandler
	mirror driven.ScheduleStore
	secret string
	logger *zap.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// secret disables the webhook secret check.
func NewHandler(
	chat ChatHandler,
	mirror driven.ScheduleStore,
	secret string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		chat:   chat,
		mirror: mirror,
		secret: secret,
		logger: logger.Named("http"),
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chats/{chatID}/events", h.PostChatEvent)
	mux.HandleFunc("GET /api/v1/users/{userID}/schedule/{date}", h.GetSchedule)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// PostChatEvent feeds one transport event to the chat service and returns the
// renders to perform. Internal failures still return the apology render so
// the user hears back.
func (h *Handler) PostChatEvent(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	chatID, err := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req ChatEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	switch model.ChatEventKind(req.Kind) {
	case model.ChatEventCommand, model.ChatEventText, model.ChatEventButton:
	default:
		writeError(w, http.StatusBadRequest, "kind must be one of command, text, button")
		return
	}

	renders, err := h.chat.Handle(r.Context(), toChatEvent(chatID, req))
	if err != nil {
		h.logger.Error("chat event failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", req.UserID),
			zap.Error(err),
		)
		if len(renders) == 0 {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, toChatEventResponse(renders))
}

// GetSchedule returns a user's mirrored lessons for one date.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	date, err := model.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	lessons, err := h.mirror.Lookup(r.Context(), userID, date)
	if err != nil {
		h.logger.Error("failed to look up schedule", zap.Int64("user_id", userID), zap.Stringer("date", date), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	total, err := h.mirror.CountByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count lessons", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ScheduleResponse{
		UserID:       userID,
		Date:         date.String(),
		Lessons:      make([]LessonResponse, 0, len(lessons)),
		TotalLessons: total,
	}
	for _, l := range lessons {
		resp.Lessons = append(resp.Lessons, toLessonResponse(l))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get(webhookSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
