package model

import "errors"

// Error taxonomy shared by every component. Adapters wrap their raw failures
// with one of these so callers can branch with errors.Is.
var (
	// ErrCredentialInvalid means a stored credential failed to decrypt or
	// decode, or the remote service rejected it.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrRemoteUnavailable covers transport failures, timeouts and 5xx/429
	// responses from the diary service.
	ErrRemoteUnavailable = errors.New("remote diary service unavailable")

	// ErrRemoteDataIncomplete means an otherwise successful response lacked
	// required data (malformed body, no profile, no dependent).
	ErrRemoteDataIncomplete = errors.New("remote data incomplete")

	// ErrInputOutOfRange is returned for navigation indices or offsets outside
	// their valid bounds.
	ErrInputOutOfRange = errors.New("input out of range")

	// ErrStorageFailure wraps persistent-store I/O errors.
	ErrStorageFailure = errors.New("storage failure")

	// ErrNeedsLogin signals that no usable session exists for the user.
	ErrNeedsLogin = errors.New("interactive login required")

	// ErrLoginFailed is returned when a login or challenge exchange fails.
	ErrLoginFailed = errors.New("login failed")

	// ErrUnknownEvent is returned for chat input the bot does not understand.
	ErrUnknownEvent = errors.New("unknown event")
)
