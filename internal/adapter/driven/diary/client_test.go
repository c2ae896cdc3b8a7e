package diary_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ericfisherdev/diarymirror/internal/adapter/driven/diary"
	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

var testCred = model.Credential{AccessToken: "tok-123", TokenType: "Bearer"}

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler, retries uint) *diary.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return diary.NewClient(diary.Config{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		RetryAttempts: retries,
		RetryDelay:    time.Millisecond,
	}, zaptest.NewLogger(t))
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestLogin_Token(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["login"])
		assert.Equal(t, "s3cret", body["password"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token": map[string]any{
				"access_token":  "tok-abc",
				"token_type":    "Bearer",
				"refresh_token": "ref-1",
				"expires_in":    3600,
			},
		})
	})

	client := newTestClient(t, mux, 0)
	res, err := client.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)

	require.NotNil(t, res.Credential)
	assert.Nil(t, res.Challenge)
	assert.Equal(t, "tok-abc", res.Credential.AccessToken)
	assert.Equal(t, "ref-1", res.Credential.RefreshToken)
	assert.False(t, res.Credential.ExpiresAt.IsZero())
}

func TestLogin_Challenge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"challenge": map[string]any{"id": "ch-9", "expires_in": 300},
		})
	})

	client := newTestClient(t, mux, 0)
	res, err := client.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)

	assert.Nil(t, res.Credential)
	require.NotNil(t, res.Challenge)
	assert.Equal(t, "ch-9", res.Challenge.ID)
	assert.Equal(t, "alice", res.Challenge.Username)
}

func TestLogin_Rejected(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "bad password"})
	})

	client := newTestClient(t, mux, 3)
	_, err := client.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, model.ErrCredentialInvalid)
	assert.Contains(t, err.Error(), "bad password")
	assert.Equal(t, int32(1), calls.Load(), "auth rejections must not be retried")
}

func TestLogin_EmptyResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})

	client := newTestClient(t, mux, 0)
	_, err := client.Login(context.Background(), "alice", "s3cret")
	require.ErrorIs(t, err, model.ErrRemoteDataIncomplete)
}

func TestCompleteChallenge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/sms", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ch-9", body["challenge_id"])
		assert.Equal(t, "123456", body["code"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token": map[string]any{"access_token": "tok-sms"},
		})
	})

	client := newTestClient(t, mux, 0)
	cred, err := client.CompleteChallenge(context.Background(), model.Challenge{ID: "ch-9"}, "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-sms", cred.AccessToken)
	assert.True(t, cred.ExpiresAt.IsZero())
}

func TestCompleteChallenge_WrongCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/sms", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "invalid code"})
	})

	client := newTestClient(t, mux, 0)
	_, err := client.CompleteChallenge(context.Background(), model.Challenge{ID: "ch-9"}, "000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRemoteDataIncomplete)
}

func TestFetchProfiles_SendsCredential(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"id": 17, "type": "parent"},
		})
	})

	client := newTestClient(t, mux, 0)
	profiles, err := client.FetchProfiles(context.Background(), testCred)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, model.Profile{ID: 17, Role: "parent"}, profiles[0])
}

func TestFetchProfiles_ExpiredToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	client := newTestClient(t, mux, 2)
	_, err := client.FetchProfiles(context.Background(), testCred)
	require.ErrorIs(t, err, model.ErrCredentialInvalid)
}

func TestFetchProfiles_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": 1, "type": "parent"}})
	})

	client := newTestClient(t, mux, 2)
	profiles, err := client.FetchProfiles(context.Background(), testCred)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchProfiles_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	client := newTestClient(t, mux, 2)
	_, err := client.FetchProfiles(context.Background(), testCred)
	require.ErrorIs(t, err, model.ErrRemoteUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchProfiles_MalformedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"a list"`))
	})

	client := newTestClient(t, mux, 2)
	_, err := client.FetchProfiles(context.Background(), testCred)
	require.ErrorIs(t, err, model.ErrRemoteDataIncomplete)
}

func TestFetchProfiles_ContextDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, mux, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.FetchProfiles(ctx, testCred)
	require.ErrorIs(t, err, model.ErrRemoteUnavailable)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFetchFamily(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /family/17", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"profile": map[string]any{"type": "parent"},
			"children": []map[string]any{
				{"id": 5, "contingent_guid": "guid-5", "first_name": "Ivan", "last_name": "Petrov"},
			},
		})
	})

	client := newTestClient(t, mux, 0)
	family, err := client.FetchFamily(context.Background(), testCred, 17)
	require.NoError(t, err)

	assert.Equal(t, "parent", family.Role)
	require.Len(t, family.Dependents, 1)
	assert.Equal(t, model.Dependent{ID: 5, PersonGUID: "guid-5", Name: "Ivan Petrov"}, family.Dependents[0])
}

func TestFetchEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "guid-5", q.Get("person_guid"))
		assert.Equal(t, "parent", q.Get("mes_role"))
		assert.Equal(t, "2024-01-01", q.Get("begin_date"))
		assert.Equal(t, "2024-01-07", q.Get("end_date"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"response": []map[string]any{
				{
					"id":           1,
					"subject_name": "Math",
					"start_at":     "2024-01-01T08:30:00+03:00",
					"finish_at":    "2024-01-01T09:15:00+03:00",
					"homework": map[string]any{
						"descriptions": []string{"<p>Solve &laquo;1-5&raquo;</p>", "  ", "<b>Read</b> p. 10"},
					},
					"room_number":  "214",
					"lesson_theme": "Fractions",
					"materials":    []map[string]any{{"type": "test"}},
				},
				{
					"id":        2,
					"start_at":  "2024-01-01T09:30:00+03:00",
					"finish_at": "2024-01-01T10:15:00+03:00",
				},
			},
		})
	})

	client := newTestClient(t, mux, 0)
	events, err := client.FetchEvents(
		context.Background(), testCred, "parent",
		model.Dependent{ID: 5, PersonGUID: "guid-5"},
		model.Date{Year: 2024, Month: time.January, Day: 1},
		model.Date{Year: 2024, Month: time.January, Day: 7},
	)
	require.NoError(t, err)
	require.Len(t, events, 2)

	math := events[0]
	assert.Equal(t, int64(1), math.ID)
	assert.Equal(t, "Math", math.Subject)
	require.NotNil(t, math.StartAt)
	assert.Equal(t, 8, math.StartAt.Hour())
	assert.Equal(t, []string{"Solve «1-5»", "Read p. 10"}, math.HomeworkFragments)
	assert.Equal(t, "214", math.Room)
	assert.Equal(t, "Fractions", math.Topic)
	assert.True(t, math.HasMaterials)
	assert.True(t, math.IsComplete())

	assert.False(t, events[1].IsComplete(), "missing subject is passed through for the caller to filter")
	assert.False(t, events[1].HasMaterials)
}
