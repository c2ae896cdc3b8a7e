package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// LoginState is the interactive login sub-flow. A nil LoginState is Idle.
type LoginState interface {
	loginState()
}

// AwaitingUsername waits for the diary login.
type AwaitingUsername struct{}

// AwaitingPassword holds the collected login and waits for the password.
type AwaitingPassword struct {
	Username string
}

// AwaitingSMSCode holds the pending challenge and waits for the code.
type AwaitingSMSCode struct {
	Challenge model.Challenge
}

func (AwaitingUsername) loginState() {}
func (AwaitingPassword) loginState() {}
func (AwaitingSMSCode) loginState()  {}

// Conversation is the process-local state of one chat. Callers must hold the
// lock returned by Conversations.Acquire while reading or writing it.
type Conversation struct {
	ChatID   int64
	UserID   int64
	Session  *Session // resolved this conversation, if any
	Login    LoginState
	Nav      NavState
	LastSeen time.Time // guarded by the owning Conversations

	mu sync.Mutex
}

// Reset drops the session, any in-progress login and the navigation state.
func (c *Conversation) Reset() {
	c.Session = nil
	c.Login = nil
	c.Nav = nil
}

// Conversations owns every live Conversation. Events for the same chat are
// serialized through a per-conversation lock; unrelated chats never block
// each other.
type Conversations struct {
	mu     sync.Mutex
	byChat map[int64]*Conversation
	ttl    time.Duration
	now    func() time.Time
}

// NewConversations creates an empty store. Conversations idle for longer than
// ttl are evicted by Sweep.
func NewConversations(ttl time.Duration) *Conversations {
	return &Conversations{
		byChat: make(map[int64]*Conversation),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for idle tracking. Intended for tests.
func (cs *Conversations) WithClock(now func() time.Time) *Conversations {
	cs.now = now
	return cs
}

// Acquire returns the locked conversation for chatID, creating it if needed.
// The returned func releases the lock. A chat whose user changed starts over.
func (cs *Conversations) Acquire(chatID, userID int64) (*Conversation, func()) {
	cs.mu.Lock()
	conv, ok := cs.byChat[chatID]
	if !ok {
		conv = &Conversation{ChatID: chatID, UserID: userID}
		cs.byChat[chatID] = conv
	}
	conv.LastSeen = cs.now()
	cs.mu.Unlock()

	conv.mu.Lock()
	if conv.UserID != userID {
		conv.Reset()
		conv.UserID = userID
	}
	return conv, conv.mu.Unlock
}

// Len returns the number of live conversations.
func (cs *Conversations) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.byChat)
}

// Sweep evicts conversations idle longer than the ttl and returns how many
// were removed. Conversations currently locked are skipped.
func (cs *Conversations) Sweep() int {
	if cs.ttl <= 0 {
		return 0
	}
	cutoff := cs.now().Add(-cs.ttl)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	var evicted int
	for chatID, conv := range cs.byChat {
		if !conv.mu.TryLock() {
			continue
		}
		if conv.LastSeen.Before(cutoff) {
			delete(cs.byChat, chatID)
			evicted++
		}
		conv.mu.Unlock()
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (cs *Conversations) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cs.Sweep(); n > 0 {
				logger.Debug("evicted idle conversations", zap.Int("evicted", n), zap.Int("live", cs.Len()))
			}
		}
	}
}
