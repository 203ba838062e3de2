package cli

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/client/config"
	"github.com/dmitrijs2005/ankisync/internal/client/mediasync"
	"github.com/dmitrijs2005/ankisync/internal/client/services"
	"github.com/dmitrijs2005/ankisync/internal/client/syncer"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSync struct {
	rep   *services.Report
	err   error
	calls []string
	dir   services.Direction
}

func (f *fakeSync) Sync(ctx context.Context) (*services.Report, error) {
	f.calls = append(f.calls, "sync")
	return f.rep, f.err
}
func (f *fakeSync) FullSync(_ context.Context, dir services.Direction) (*services.Report, error) {
	f.calls = append(f.calls, "full")
	f.dir = dir
	return f.rep, f.err
}
func (f *fakeSync) Media(ctx context.Context) (*services.Report, error) {
	f.calls = append(f.calls, "media")
	return f.rep, f.err
}

func TestSync_PrintsReport(t *testing.T) {
	f := &fakeSync{rep: &services.Report{
		Collection:  syncer.Success,
		Media:       mediasync.Success,
		MediaSynced: true,
		MediaStats:  mediasync.Stats{Downloaded: 3, Uploaded: 1},
		Message:     "maintenance tonight",
		Downloaded:  2048,
		Uploaded:    100,
	}}
	a, out := newTestApp(nil, f)

	require.NoError(t, a.Sync(context.Background()))
	assert.Equal(t, "Server message: maintenance tonight\n"+
		"Collection synced.\n"+
		"Media synced: 3 downloaded, 1 uploaded, 0 removed.\n"+
		"Transferred 2.0 KB down, 100 B up.\n", out.String())
}

func TestSync_FullSyncNeeded(t *testing.T) {
	f := &fakeSync{rep: &services.Report{Collection: syncer.FullSync}}
	a, out := newTestApp(nil, f)

	require.NoError(t, a.Sync(context.Background()))
	assert.Contains(t, out.String(), "'full download'")
}

func TestSync_ErrorShowsOnlyMessage(t *testing.T) {
	f := &fakeSync{rep: &services.Report{Message: "bye"}, err: common.ErrServerAbort}
	a, out := newTestApp(nil, f)

	err := a.Sync(context.Background())
	require.ErrorIs(t, err, common.ErrServerAbort)
	assert.Equal(t, "Server message: bye\n", out.String())
}

func TestFull(t *testing.T) {
	f := &fakeSync{rep: &services.Report{Collection: syncer.Success}}
	a, out := newTestApp(nil, f)

	require.NoError(t, a.Full(context.Background(), []string{"sideways"}))
	assert.Empty(t, f.calls)
	assert.Contains(t, out.String(), "Usage: full download|upload")

	require.NoError(t, a.Full(context.Background(), []string{"upload"}))
	assert.Equal(t, services.Upload, f.dir)
}

func TestMedia_Disabled(t *testing.T) {
	f := &fakeSync{}
	a, out := newTestApp(nil, f)
	a.config = &config.Config{MediaEnabled: false}

	require.NoError(t, a.Media(context.Background()))
	assert.Empty(t, f.calls)
	assert.Contains(t, out.String(), "disabled")
}

func TestSync_InterruptCancels(t *testing.T) {
	orig := interruptible
	t.Cleanup(func() { interruptible = orig })
	interruptible = func(ctx context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return ctx, cancel
	}
	f := &fakeSync{}
	a, _ := newTestApp(nil, &ctxSync{fakeSync: f})

	err := a.Sync(context.Background())
	require.ErrorIs(t, err, common.ErrUserAborted)
}

// ctxSync fails the way the services do when the context is already done.
type ctxSync struct{ *fakeSync }

func (c *ctxSync) Sync(ctx context.Context) (*services.Report, error) {
	if ctx.Err() != nil {
		return &services.Report{}, common.ErrUserAborted
	}
	return c.fakeSync.Sync(ctx)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KB", humanBytes(1536))
	assert.Equal(t, "3.0 MB", humanBytes(3<<20))
}
