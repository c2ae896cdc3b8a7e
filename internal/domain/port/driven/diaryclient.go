package driven

import (
	"context"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// LoginResult is the outcome of a username/password login. Exactly one of
// Credential or Challenge is set.
type LoginResult struct {
	Credential *model.Credential
	Challenge  *model.Challenge
}

// DiaryClient defines the driven port for the remote school-diary service.
// Every method is a network call and may fail or time out. Implementations
// wrap failures with model.ErrCredentialInvalid, model.ErrRemoteUnavailable or
// model.ErrRemoteDataIncomplete.
type DiaryClient interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
	CompleteChallenge(ctx context.Context, challenge model.Challenge, code string) (model.Credential, error)

	// FetchProfiles returns the profiles of the account owning cred.
	FetchProfiles(ctx context.Context, cred model.Credential) ([]model.Profile, error)
	// FetchFamily returns the dependents linked to profileID.
	FetchFamily(ctx context.Context, cred model.Credential, profileID int64) (model.Family, error)
	// FetchEvents returns schedule events for dependent over [begin, end] inclusive.
	FetchEvents(ctx context.Context, cred model.Credential, role string, dependent model.Dependent, begin, end model.Date) ([]model.Event, error)
}
