package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for the sync account and exchanges it for a host key. The
// password byte slice is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Login(ctx, userName, password); err != nil {
		a.log.Warn(ctx, "login failed", "user", userName, "error", err)
		return err
	}
	a.userName, a.loggedIn = userName, true
	a.log.Info(ctx, "logged in", "user", userName)
	fmt.Fprintln(a.out, "Logged in.")
	return nil
}

// Logout forgets the stored host key.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.userName, a.loggedIn = "", false
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// Server switches to the custom sync server given in args, or back to the
// default one without arguments.
func (a *App) Server(ctx context.Context, args []string) error {
	url := ""
	if len(args) > 0 {
		url = args[0]
	}
	if err := a.authService.SetServer(ctx, url); err != nil {
		return err
	}
	if url == "" {
		fmt.Fprintln(a.out, "Using the default sync server.")
	} else {
		fmt.Fprintln(a.out, "Using sync server", url)
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.authService.Status(ctx)
	if err != nil {
		return err
	}
	if st.LoggedIn {
		fmt.Fprintf(a.out, "Logged in as %s\n", st.UserName)
	} else {
		fmt.Fprintln(a.out, "Not logged in")
	}
	fmt.Fprintf(a.out, "Collection server: %s\nMedia server: %s\n", st.ServerURL, st.MediaURL)
	if st.HasHostNum {
		fmt.Fprintf(a.out, "Host number: %d\n", st.HostNum)
	}
	return nil
}
