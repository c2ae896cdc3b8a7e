package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ericfisherdev/diarymirror/internal/application"
	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// --- Mock implementations ---

var sealPrefix = []byte("sealed:")

// fakeSealer marks plaintext with a prefix; Open rejects anything unmarked.
type fakeSealer struct{}

func (fakeSealer) Seal(plaintext []byte) ([]byte, error) {
	return append(bytes.Clone(sealPrefix), plaintext...), nil
}

func (fakeSealer) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, sealPrefix) {
		return nil, fmt.Errorf("%w: authentication failed", model.ErrCredentialInvalid)
	}
	return bytes.Clone(sealed[len(sealPrefix):]), nil
}

type memCredentialStore struct {
	mu     sync.Mutex
	rows   map[int64][]byte
	putErr error
	getErr error
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{rows: make(map[int64][]byte)}
}

func (m *memCredentialStore) Put(_ context.Context, userID int64, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.rows[userID] = bytes.Clone(sealed)
	return nil
}

func (m *memCredentialStore) Get(_ context.Context, userID int64) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	sealed, ok := m.rows[userID]
	return sealed, ok, nil
}

func (m *memCredentialStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	return nil
}

func (m *memCredentialStore) ListUserIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memCredentialStore) has(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[userID]
	return ok
}

type memScheduleStore struct {
	mu         sync.Mutex
	partitions map[int64][]model.Lesson
	replaces   int
	lookups    int
	replaceErr error
	lookupErr  error
}

func newMemScheduleStore() *memScheduleStore {
	return &memScheduleStore{partitions: make(map[int64][]model.Lesson)}
}

func (m *memScheduleStore) ReplaceAll(_ context.Context, userID int64, lessons []model.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaces++
	m.partitions[userID] = slices.Clone(lessons)
	return nil
}

func (m *memScheduleStore) Lookup(_ context.Context, userID int64, date model.Date) ([]model.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	out := []model.Lesson{}
	for _, l := range m.partitions[userID] {
		if l.Date == date {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memScheduleStore) DeleteAll(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, userID)
	return nil
}

func (m *memScheduleStore) CountByUser(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.partitions[userID]), nil
}

func (m *memScheduleStore) partition(userID int64) []model.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.partitions[userID])
}

func (m *memScheduleStore) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

type eventsCall struct {
	Cred       model.Credential
	Begin, End model.Date
}

// mockDiaryClient answers with a parent profile and one dependent unless a
// func field overrides the call.
type mockDiaryClient struct {
	mu         sync.Mutex
	calls      map[string]int
	eventCalls []eventsCall

	login             func(username, password string) (driven.LoginResult, error)
	completeChallenge func(ch model.Challenge, code string) (model.Credential, error)
	fetchProfiles     func(ctx context.Context, cred model.Credential) ([]model.Profile, error)
	fetchFamily       func(ctx context.Context, cred model.Credential) (model.Family, error)
	fetchEvents       func(ctx context.Context, cred model.Credential, begin, end model.Date) ([]model.Event, error)
}

func (m *mockDiaryClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *mockDiaryClient) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockDiaryClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockDiaryClient) Login(_ context.Context, username, password string) (driven.LoginResult, error) {
	m.record("Login")
	if m.login == nil {
		return driven.LoginResult{}, fmt.Errorf("%w: no login configured", model.ErrCredentialInvalid)
	}
	return m.login(username, password)
}

func (m *mockDiaryClient) CompleteChallenge(_ context.Context, ch model.Challenge, code string) (model.Credential, error) {
	m.record("CompleteChallenge")
	if m.completeChallenge == nil {
		return model.Credential{}, fmt.Errorf("%w: no challenge configured", model.ErrCredentialInvalid)
	}
	return m.completeChallenge(ch, code)
}

func (m *mockDiaryClient) FetchProfiles(ctx context.Context, cred model.Credential) ([]model.Profile, error) {
	m.record("FetchProfiles")
	if m.fetchProfiles != nil {
		return m.fetchProfiles(ctx, cred)
	}
	return []model.Profile{{ID: 1, Role: "parent"}}, nil
}

func (m *mockDiaryClient) FetchFamily(ctx context.Context, cred model.Credential, _ int64) (model.Family, error) {
	m.record("FetchFamily")
	if m.fetchFamily != nil {
		return m.fetchFamily(ctx, cred)
	}
	return model.Family{Role: "parent", Dependents: []model.Dependent{{ID: 5, PersonGUID: "guid-5"}}}, nil
}

func (m *mockDiaryClient) FetchEvents(ctx context.Context, cred model.Credential, _ string, _ model.Dependent, begin, end model.Date) ([]model.Event, error) {
	m.record("FetchEvents")
	m.mu.Lock()
	m.eventCalls = append(m.eventCalls, eventsCall{Cred: cred, Begin: begin, End: end})
	m.mu.Unlock()
	if m.fetchEvents != nil {
		return m.fetchEvents(ctx, cred, begin, end)
	}
	return nil, nil
}

// --- Fixtures ---

var errDiskFull = errors.New("disk full")

// fixedNow is Wednesday 2024-01-03 10:00 UTC. Its window starts on Monday
// 2023-12-25 and index 7 is Monday 2024-01-01.
func fixedNow() time.Time {
	return time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) model.Date {
	return model.Date{Year: y, Month: m, Day: d}
}

// event builds a 45-minute event starting at h:m UTC on d.
func event(id int64, subject string, d model.Date, h, m int) model.Event {
	start := time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, time.UTC)
	finish := start.Add(45 * time.Minute)
	return model.Event{ID: id, Subject: subject, StartAt: &start, FinishAt: &finish}
}

func lesson(userID int64, d model.Date, id int64, subject string, h, m int) model.Lesson {
	start := model.TimeOfDay{Hour: h, Minute: m}
	return model.Lesson{UserID: userID, Date: d, LessonID: id, Subject: subject, Start: &start}
}

type fixture struct {
	client    *mockDiaryClient
	creds     *memCredentialStore
	mirror    *memScheduleStore
	vault     *application.TokenVault
	resolver  *application.SessionResolver
	sync      *application.SyncService
	navigator *application.Navigator
	eraser    *application.Eraser
	convs     *application.Conversations
	chat      *application.ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	f := &fixture{
		client: &mockDiaryClient{},
		creds:  newMemCredentialStore(),
		mirror: newMemScheduleStore(),
		convs:  application.NewConversations(time.Hour),
	}
	f.vault = application.NewTokenVault(fakeSealer{}, f.creds)
	f.resolver = application.NewSessionResolver(f.vault, f.client, time.Second, logger).WithClock(fixedNow)
	f.sync = application.NewSyncService(f.vault, f.client, f.mirror, application.SyncConfig{
		Interval:    time.Hour,
		UserTimeout: time.Second,
		Parallelism: 2,
	}, logger).WithClock(fixedNow)
	f.navigator = application.NewNavigator(f.resolver, f.mirror, time.Second, logger).WithClock(fixedNow)
	f.eraser = application.NewEraser(f.vault, f.mirror, logger)
	f.chat = application.NewChatService(f.convs, f.resolver, f.sync, f.navigator, f.eraser, logger)
	return f
}

// storeCredential seals and stores a credential with the given token for userID.
func (f *fixture) storeCredential(t *testing.T, userID int64, token string) {
	t.Helper()
	if err := f.vault.Save(context.Background(), userID, model.Credential{AccessToken: token}); err != nil {
		t.Fatalf("store credential: %v", err)
	}
}
