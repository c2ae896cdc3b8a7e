package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// User-facing replies.
const (
	msgAlreadyLoggedIn = "You are already logged in."
	msgAskUsername     = "Please enter your diary login (phone, email or username):"
	msgAskPassword     = "Now enter your password:"
	msgSigningIn       = "Please wait, signing in..."
	msgAskCode         = "Enter the code from the SMS or the authenticator app:"
	msgLoginOK         = "Login successful! Use /schedule to view the schedule."
	msgLoginFailed     = "Login failed. Try again with /login."
	msgCodeFailed      = "Wrong or expired code. Try again with /login."
	msgCancelled       = "Operation cancelled. Send /start to begin again."
	msgNeedLogin       = "Please /login first."
	msgSessionExpired  = "Your session has expired. Please /login again."
	msgRetentionNotice = "Note: only three weeks of schedule are kept (previous, current and next)."
	msgErased          = "Your data has been deleted. Send /start to begin again."
	msgOutOfRange      = "Error: that selection is out of range."
	msgUnknownInput    = "Unknown input."
	msgUnknownCommand  = "Unknown command. Send /start to see the available commands."
	msgIdleText        = "Send /start to see the available commands."
	msgInternalError   = "Something went wrong. Please try again later."
	msgWelcome         = "This bot shows your school diary schedule.\n" +
		"Commands:\n" +
		"  /login - sign in (login, password and SMS code)\n" +
		"  /schedule - browse the schedule (after signing in)\n" +
		"  /erase - delete your data from the bot\n" +
		"  /cancel - cancel the current operation\n" +
		"  /start - show this message or the action menu\n\n" +
		"To begin, send /login."
)

// ChatService turns chat events into render requests. Events for one chat are
// handled one at a time; different chats proceed independently.
type ChatService struct {
	convs     *Conversations
	resolver  *SessionResolver
	sync      *SyncService
	navigator *Navigator
	eraser    *Eraser
	logger    *zap.Logger
}

// NewChatService creates a ChatService with all required dependencies.
func NewChatService(
	convs *Conversations,
	resolver *SessionResolver,
	sync *SyncService,
	navigator *Navigator,
	eraser *Eraser,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		convs:     convs,
		resolver:  resolver,
		sync:      sync,
		navigator: navigator,
		eraser:    eraser,
		logger:    logger.Named("chat"),
	}
}

// Handle processes one chat event. A non-nil error signals an internal
// failure; the returned renders then carry an apology for the user.
func (s *ChatService) Handle(ctx context.Context, ev model.ChatEvent) ([]model.RenderRequest, error) {
	conv, release := s.convs.Acquire(ev.ChatID, ev.UserID)
	defer release()

	var renders []model.RenderRequest
	var err error

	switch ev.Kind {
	case model.ChatEventCommand:
		renders, err = s.handleCommand(ctx, conv, ev)
	case model.ChatEventText:
		renders, err = s.handleText(ctx, conv, ev)
	case model.ChatEventButton:
		renders, err = s.handleButton(ctx, conv, ev)
	default:
		return []model.RenderRequest{textReply(msgUnknownInput)}, nil
	}

	if err != nil {
		s.logger.Error("chat event failed",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("user_id", ev.UserID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		return []model.RenderRequest{textReply(msgInternalError)}, err
	}
	return renders, nil
}

func normalizeCommand(cmd string) string {
	cmd = strings.TrimPrefix(strings.TrimSpace(cmd), "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (s *ChatService) handleCommand(ctx context.Context, conv *Conversation, ev model.ChatEvent) ([]model.RenderRequest, error) {
	switch normalizeCommand(ev.Command) {
	case "start":
		return s.start(ctx, conv, ev), nil
	case "login":
		return s.login(ctx, conv), nil
	case "cancel":
		conv.Login = nil
		return []model.RenderRequest{textReply(msgCancelled)}, nil
	case "schedule":
		return s.schedule(ctx, conv, ev.MessageID)
	case "erase":
		return s.erase(ctx, conv, 0)
	default:
		return []model.RenderRequest{textReply(msgUnknownCommand)}, nil
	}
}

func (s *ChatService) start(ctx context.Context, conv *Conversation, ev model.ChatEvent) []model.RenderRequest {
	greeting := "Hello!"
	if ev.UserName != "" {
		greeting = fmt.Sprintf("Hello, %s!", ev.UserName)
	}

	if !s.verifySession(ctx, conv) {
		return []model.RenderRequest{textReply(greeting + "\n\n" + msgWelcome)}
	}

	return []model.RenderRequest{{
		Kind: model.RenderText,
		Text: greeting + " You are already logged in. Choose an action:",
		Buttons: [][]model.Button{
			{button("View schedule", ActionSchedule)},
			{button("Delete my data from the bot", ActionErase)},
		},
	}}
}

// verifySession reports whether the user has a credential the diary service
// currently accepts, caching the resolved session on the conversation.
func (s *ChatService) verifySession(ctx context.Context, conv *Conversation) bool {
	session, err := s.resolver.Resolve(ctx, conv.UserID)
	if err != nil {
		conv.Session = nil
		return false
	}
	conv.Session = session
	return true
}

func (s *ChatService) login(ctx context.Context, conv *Conversation) []model.RenderRequest {
	if s.verifySession(ctx, conv) {
		conv.Login = nil
		return []model.RenderRequest{textReply(msgAlreadyLoggedIn)}
	}
	conv.Login = AwaitingUsername{}
	return []model.RenderRequest{textReply(msgAskUsername)}
}

func (s *ChatService) handleText(ctx context.Context, conv *Conversation, ev model.ChatEvent) ([]model.RenderRequest, error) {
	text := strings.TrimSpace(ev.Text)

	switch st := conv.Login.(type) {
	case AwaitingUsername:
		conv.Login = AwaitingPassword{Username: text}
		return []model.RenderRequest{textReply(msgAskPassword)}, nil

	case AwaitingPassword:
		// The password message is removed from the chat history.
		renders := append(deleteMessage(ev.MessageID), textReply(msgSigningIn))

		attempt, err := s.resolver.Login(ctx, conv.UserID, st.Username, text)
		if err != nil {
			conv.Login = nil
			return append(renders, textReply(msgLoginFailed)), nil
		}
		if attempt.Challenge != nil {
			conv.Login = AwaitingSMSCode{Challenge: *attempt.Challenge}
			return append(renders, textReply(msgAskCode)), nil
		}
		s.authenticated(ctx, conv, attempt.Session)
		return append(renders, textReply(msgLoginOK)), nil

	case AwaitingSMSCode:
		session, err := s.resolver.CompleteChallenge(ctx, conv.UserID, st.Challenge, text)
		if err != nil {
			conv.Login = nil
			return []model.RenderRequest{textReply(msgCodeFailed)}, nil
		}
		s.authenticated(ctx, conv, session)
		return []model.RenderRequest{textReply(msgLoginOK)}, nil

	default:
		return []model.RenderRequest{textReply(msgIdleText)}, nil
	}
}

// authenticated finishes a login: the session is kept for the conversation
// and the mirror is refreshed once. A failed refresh only means the mirror
// stays as it was.
func (s *ChatService) authenticated(ctx context.Context, conv *Conversation, session *Session) {
	conv.Login = nil
	conv.Session = session
	_ = s.sync.SyncOnDemand(ctx, session, conv.UserID)
}

func (s *ChatService) schedule(ctx context.Context, conv *Conversation, messageID int64) ([]model.RenderRequest, error) {
	if conv.Session == nil {
		session, err := s.resolver.Restore(ctx, conv.UserID)
		switch {
		case errors.Is(err, model.ErrNeedsLogin):
			return []model.RenderRequest{textReply(msgNeedLogin)}, nil
		case errors.Is(err, model.ErrCredentialInvalid):
			return []model.RenderRequest{textReply(msgSessionExpired)}, nil
		case err != nil:
			return nil, err
		}
		conv.Session = session
	}

	view, err := s.navigator.Handle(ctx, conv, Back{To: BackToSchedule})
	if err != nil {
		return nil, err
	}

	renders := []model.RenderRequest{textReply(msgRetentionNotice)}
	renders = append(renders, deleteMessage(messageID)...)
	return append(renders, renderView(view)), nil
}

func (s *ChatService) erase(ctx context.Context, conv *Conversation, messageID int64) ([]model.RenderRequest, error) {
	if err := s.eraser.Erase(ctx, conv.UserID); err != nil {
		return nil, err
	}
	conv.Reset()
	return append(deleteMessage(messageID), textReply(msgErased)), nil
}

func (s *ChatService) handleButton(ctx context.Context, conv *Conversation, ev model.ChatEvent) ([]model.RenderRequest, error) {
	p, err := ParsePayload(ev.Payload)
	if err != nil {
		s.logger.Warn("unknown button payload", zap.Int64("chat_id", ev.ChatID), zap.String("payload", ev.Payload))
		return []model.RenderRequest{textReply(msgUnknownInput)}, nil
	}

	switch v := p.(type) {
	case Noop:
		return nil, nil
	case Action:
		if v == ActionErase {
			return s.erase(ctx, conv, ev.MessageID)
		}
		return s.schedule(ctx, conv, ev.MessageID)
	case NavEvent:
		view, err := s.navigator.Handle(ctx, conv, v)
		switch {
		case errors.Is(err, model.ErrInputOutOfRange):
			return append(deleteMessage(ev.MessageID), textReply(msgOutOfRange)), nil
		case errors.Is(err, model.ErrUnknownEvent):
			return []model.RenderRequest{textReply(msgUnknownInput)}, nil
		case err != nil:
			return nil, err
		}
		return append(deleteMessage(ev.MessageID), renderView(view)), nil
	default:
		return []model.RenderRequest{textReply(msgUnknownInput)}, nil
	}
}
