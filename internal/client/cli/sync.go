package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dmitrijs2005/ankisync/internal/client/mediasync"
	"github.com/dmitrijs2005/ankisync/internal/client/services"
	"github.com/dmitrijs2005/ankisync/internal/client/syncer"
)

// interruptible cancels the returned context on Ctrl-C, so a running sync
// aborts instead of the whole program exiting.
var interruptible = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

func (a *App) Sync(ctx context.Context) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	rep, err := a.syncService.Sync(ctx)
	a.printReport(rep, err)
	if err != nil {
		return err
	}
	if rep.Collection == syncer.FullSync {
		fmt.Fprintln(a.out, "The collections cannot be merged. Run 'full download' to keep the server copy or 'full upload' to keep this one.")
	}
	return nil
}

func (a *App) Full(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != string(services.Download) && args[0] != string(services.Upload)) {
		fmt.Fprintln(a.out, "Usage: full download|upload")
		return nil
	}
	ctx, stop := interruptible(ctx)
	defer stop()

	rep, err := a.syncService.FullSync(ctx, services.Direction(args[0]))
	a.printReport(rep, err)
	return err
}

func (a *App) Media(ctx context.Context) error {
	if a.config != nil && !a.config.MediaEnabled {
		fmt.Fprintln(a.out, "Media sync is disabled (-m=false).")
		return nil
	}
	ctx, stop := interruptible(ctx)
	defer stop()

	rep, err := a.syncService.Media(ctx)
	a.printReport(rep, err)
	return err
}

// printReport prints what a sync did. After a failure only the server
// message is shown; the error itself is printed by the REPL.
func (a *App) printReport(rep *services.Report, err error) {
	if rep == nil {
		return
	}
	if rep.Message != "" {
		fmt.Fprintf(a.out, "Server message: %s\n", rep.Message)
	}
	if err != nil {
		return
	}
	switch rep.Collection {
	case syncer.Success:
		fmt.Fprintln(a.out, "Collection synced.")
	case syncer.NoChanges:
		fmt.Fprintln(a.out, "Collection: no changes.")
	}
	if rep.MediaSynced {
		if rep.Media == mediasync.NoChanges {
			fmt.Fprintln(a.out, "Media: no changes.")
		} else {
			fmt.Fprintf(a.out, "Media synced: %d downloaded, %d uploaded, %d removed.\n",
				rep.MediaStats.Downloaded, rep.MediaStats.Uploaded, rep.MediaStats.Deleted)
		}
	}
	fmt.Fprintf(a.out, "Transferred %s down, %s up.\n", humanBytes(rep.Downloaded), humanBytes(rep.Uploaded))
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
