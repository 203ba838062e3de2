package common

import (
	"errors"
	"fmt"
)

// Sync error taxonomy. Every value's text is the stable identifier the UI
// maps to a localized message. Callers should use errors.Is to match them.
var (
	// Collection sync.
	ErrBadAuth          = errors.New("badAuth")
	ErrClockOff         = errors.New("clockOff")
	ErrDB               = errors.New("dbError")
	ErrBasicCheckFailed = errors.New("basicCheckFailed")
	ErrOverwrite        = errors.New("overwriteError")
	ErrRemoteDB         = errors.New("remoteDbError")
	ErrSDAccess         = errors.New("sdAccessError")
	ErrFinish           = errors.New("finishError")
	ErrSanityCheck      = errors.New("sanityCheckError")
	ErrServerAbort      = errors.New("serverAbort")
	ErrUserAborted      = errors.New("userAbortedSync")
	ErrUpgradeRequired  = errors.New("upgradeRequired")
	ErrNetwork          = errors.New("noNetwork")
	ErrOutOfMemory      = errors.New("outOfMemoryError")

	// Transport.
	ErrUnexpectedResponse  = errors.New("unexpected response")
	ErrCustomSyncServerURL = errors.New("customSyncServerUrl")

	// Media sync.
	ErrCorrupt           = errors.New("corrupt")
	ErrMediaSanity       = errors.New("sanityFailed")
	ErrMediaServer       = errors.New("mediaSyncServerError")
	ErrMediaRestartLimit = errors.New("media sync restarted too many times")

	// Local state.
	ErrNotLoggedIn = errors.New("not logged in")
)

// ClockOffError reports the absolute skew in seconds between the server and
// the local clock.
type ClockOffError struct {
	Skew int64
}

func (e *ClockOffError) Error() string {
	return fmt.Sprintf("%s: clock is off by %ds", ErrClockOff, e.Skew)
}

func (e *ClockOffError) Unwrap() error { return ErrClockOff }

// UnexpectedResponseError is returned for any HTTP status other than 200 or 403.
type UnexpectedResponseError struct {
	Code    int
	Message string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedResponse, e.Code, e.Message)
}

func (e *UnexpectedResponseError) Unwrap() error { return ErrUnexpectedResponse }

// CustomSyncServerURLError means the user-configured server URL could not be
// turned into a request URL.
type CustomSyncServerURLError struct {
	URL string
	Err error
}

func (e *CustomSyncServerURLError) Error() string {
	return fmt.Sprintf("%s: invalid custom sync server url %q: %v", ErrCustomSyncServerURL, e.URL, e.Err)
}

func (e *CustomSyncServerURLError) Is(target error) bool { return target == ErrCustomSyncServerURL }

func (e *CustomSyncServerURLError) Unwrap() error { return e.Err }

// MediaServerError carries the non-empty "err" field of a media response.
type MediaServerError struct {
	Verb    string
	Message string
}

func (e *MediaServerError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMediaServer, e.Verb, e.Message)
}

func (e *MediaServerError) Unwrap() error { return ErrMediaServer }

// MediaSanityError carries the server's reply to a failed media sanity check.
type MediaSanityError struct {
	Reply string
}

func (e *MediaSanityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMediaSanity, e.Reply)
}

func (e *MediaSanityError) Unwrap() error { return ErrMediaSanity }
