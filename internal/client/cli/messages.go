package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/common"
)

const fullSyncNext = "The next sync will be a full sync."

// describe turns a sync error into the line shown to the user. Kinds are
// tried from the most specific, since media errors may wrap others.
func describe(err error) string {
	var (
		clockOff *common.ClockOffError
		unexp    *common.UnexpectedResponseError
		mse      *common.MediaServerError
		sanity   *common.MediaSanityError
	)
	switch {
	case errors.Is(err, common.ErrUserAborted):
		return "Sync cancelled."
	case errors.Is(err, common.ErrNotLoggedIn):
		return "Not logged in; use 'login' first."
	case errors.Is(err, common.ErrBadAuth):
		return "The server rejected your credentials. Log in again."
	case errors.As(err, &clockOff):
		return fmt.Sprintf("Your clock is off by %d seconds. Fix the system time and try again.", clockOff.Skew)
	case errors.Is(err, common.ErrSanityCheck):
		return "The collections did not match after syncing. " + fullSyncNext
	case errors.Is(err, common.ErrServerAbort):
		return "The server aborted the sync."
	case errors.Is(err, common.ErrBasicCheckFailed):
		return "The collection failed its integrity check and was not uploaded. Check the database first."
	case errors.Is(err, common.ErrOverwrite):
		return "The server refused the upload: " + err.Error()
	case errors.Is(err, common.ErrUpgradeRequired):
		return "The server requires a newer client."
	case errors.Is(err, common.ErrRemoteDB):
		return "The server sent data that could not be read."
	case errors.Is(err, common.ErrFinish):
		return "The server failed to finish the sync."
	case errors.Is(err, common.ErrSDAccess):
		return "Local files could not be written: " + err.Error()
	case errors.Is(err, common.ErrDB):
		return "The local database failed: " + err.Error()
	case errors.Is(err, common.ErrCustomSyncServerURL):
		return "The custom sync server URL is not valid: " + err.Error()
	case errors.Is(err, common.ErrNetwork):
		return "No connection to the sync server."
	case errors.Is(err, common.ErrOutOfMemory):
		return "Out of memory while syncing."
	case errors.As(err, &sanity):
		return "Media did not match the server (" + sanity.Reply + "). The next media sync will start over."
	case errors.Is(err, common.ErrCorrupt):
		return "The media database is damaged: " + err.Error()
	case errors.Is(err, common.ErrMediaRestartLimit):
		return "Media kept changing on the server during sync. Try again later."
	case errors.As(err, &mse):
		return fmt.Sprintf("The media server failed on %s: %s", mse.Verb, mse.Message)
	case errors.As(err, &unexp):
		return fmt.Sprintf("Unexpected server response %d: %s", unexp.Code, unexp.Message)
	}
	return "Error: " + err.Error()
}
