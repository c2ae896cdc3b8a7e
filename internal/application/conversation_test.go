package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ericfisherdev/diarymirror/internal/application"
)

func TestConversations_AcquireCreatesAndReuses(t *testing.T) {
	cs := application.NewConversations(time.Hour)

	conv, release := cs.Acquire(10, 1)
	conv.Login = application.AwaitingUsername{}
	release()

	again, release := cs.Acquire(10, 1)
	defer release()
	assert.Same(t, conv, again)
	assert.Equal(t, application.AwaitingUsername{}, again.Login)
	assert.Equal(t, 1, cs.Len())
}

func TestConversations_UserChangeResets(t *testing.T) {
	cs := application.NewConversations(time.Hour)

	conv, release := cs.Acquire(10, 1)
	conv.Login = application.AwaitingPassword{Username: "parent"}
	conv.Nav = application.ShowingWindow{Offset: 2}
	release()

	conv, release = cs.Acquire(10, 2)
	defer release()
	assert.Equal(t, int64(2), conv.UserID)
	assert.Nil(t, conv.Login)
	assert.Nil(t, conv.Nav)
}

func TestConversations_SerializesSameChat(t *testing.T) {
	cs := application.NewConversations(time.Hour)

	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, release := cs.Acquire(10, 1)
			defer release()
			// Unsynchronized read-modify-write, safe only under the conversation lock.
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			conv.Nav = application.ShowingWindow{Offset: counter % 17}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestConversations_Sweep(t *testing.T) {
	now := time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC)
	cs := application.NewConversations(time.Hour).WithClock(func() time.Time { return now })

	_, release := cs.Acquire(1, 1)
	release()
	_, release = cs.Acquire(2, 2)
	release()

	now = now.Add(45 * time.Minute)
	_, release = cs.Acquire(2, 2)
	release()

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, cs.Sweep())
	assert.Equal(t, 1, cs.Len())

	// A conversation in use is never evicted.
	_, release = cs.Acquire(2, 2)
	now = now.Add(2 * time.Hour)
	assert.Zero(t, cs.Sweep())
	release()
	assert.Equal(t, 1, cs.Sweep())
	assert.Zero(t, cs.Len())
}

func TestConversations_RunSweeperStops(t *testing.T) {
	cs := application.NewConversations(time.Nanosecond)
	_, release := cs.Acquire(1, 1)
	release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cs.RunSweeper(ctx, time.Millisecond, zaptest.NewLogger(t))
		close(done)
	}()

	require.Eventually(t, func() bool { return cs.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
