package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"clock", &common.ClockOffError{Skew: 301}, "Your clock is off by 301 seconds. Fix the system time and try again."},
		{"sanity", fmt.Errorf("sync: %w", common.ErrSanityCheck), "The collections did not match after syncing. The next sync will be a full sync."},
		{"media sanity", fmt.Errorf("media sync: %w", &common.MediaSanityError{Reply: "FAILED"}), "Media did not match the server (FAILED). The next media sync will start over."},
		{"media server", &common.MediaServerError{Verb: "begin", Message: "busy"}, "The media server failed on begin: busy"},
		{"unexpected", &common.UnexpectedResponseError{Code: 502, Message: "Bad Gateway"}, "Unexpected server response 502: Bad Gateway"},
		{"aborted", common.ErrUserAborted, "Sync cancelled."},
		{"other", errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.err))
		})
	}
}

func TestDescribe_DistinctPerKind(t *testing.T) {
	kinds := []error{
		common.ErrBadAuth, common.ErrDB, common.ErrBasicCheckFailed, common.ErrOverwrite,
		common.ErrRemoteDB, common.ErrSDAccess, common.ErrFinish, common.ErrSanityCheck,
		common.ErrServerAbort, common.ErrUserAborted, common.ErrUpgradeRequired, common.ErrNetwork,
		common.ErrCustomSyncServerURL, common.ErrOutOfMemory, common.ErrCorrupt,
		common.ErrMediaRestartLimit, common.ErrNotLoggedIn,
	}
	seen := map[string]error{}
	for _, k := range kinds {
		msg := describe(k)
		prev, dup := seen[msg]
		assert.False(t, dup, "%v and %v share %q", prev, k, msg)
		seen[msg] = k
	}
}
