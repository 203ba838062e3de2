// Package services contains the application services behind the ankisync
// CLI: the sync login and server choice, and the sync coordinator that runs
// collection, full and media syncs against the configured endpoint.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/client/endpoint"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ankisync/internal/common"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: exchange credentials for a host key and persist it with the user name.
//   - Logout: forget the host key, the user name and the host number.
//   - SetServer: switch to a custom sync server, or back to the default with "".
//   - Status: report who is logged in and where syncs go.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Login(ctx context.Context, username string, password []byte) error
	Logout(ctx context.Context) error
	SetServer(ctx context.Context, rawURL string) error
	Status(ctx context.Context) (*Status, error)
}

// Status is the login and endpoint state shown by the CLI.
type Status struct {
	UserName  string
	LoggedIn  bool
	ServerURL string
	MediaURL  string
	HostNum   int
	// HasHostNum is false until a meta reply assigns a host.
	HasHostNum bool
}

// authService keeps its state in the collection preferences so it survives
// restarts and a full download replacing the file.
type authService struct {
	col    *collection.Collection
	ep     *endpoint.Endpoint
	server client.CollectionServer
}

// NewAuthService constructs an AuthService. server is only used for the
// hostKey verb.
func NewAuthService(col *collection.Collection, ep *endpoint.Endpoint, server client.CollectionServer) AuthService {
	return &authService{col: col, ep: ep, server: server}
}

// Login stores the host key and user name in a single transaction. A
// rejected password leaves the previous login in place.
func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	key, err := a.server.HostKey(ctx, username, string(password))
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}
	return a.col.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		if err := st.Prefs.SetString(ctx, metadata.KeyHostKey, key); err != nil {
			return err
		}
		return st.Prefs.SetString(ctx, metadata.KeyUserName, username)
	})
}

func (a *authService) Logout(ctx context.Context) error {
	a.ep.Reset()
	return a.col.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		if err := st.Prefs.Delete(ctx, metadata.KeyHostKey); err != nil {
			return err
		}
		if err := st.Prefs.Delete(ctx, metadata.KeyUserName); err != nil {
			return err
		}
		return a.ep.Save(ctx, st.Prefs)
	})
}

// SetServer validates rawURL before anything is stored.
func (a *authService) SetServer(ctx context.Context, rawURL string) error {
	if err := a.ep.SetCustomURL(rawURL); err != nil {
		return err
	}
	return a.col.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		return a.ep.Save(ctx, st.Prefs)
	})
}

func (a *authService) Status(ctx context.Context) (*Status, error) {
	prefs := a.col.Store().Prefs
	user, err := prefs.GetString(ctx, metadata.KeyUserName)
	if err != nil {
		return nil, err
	}
	key, err := prefs.GetString(ctx, metadata.KeyHostKey)
	if err != nil {
		return nil, err
	}
	st := &Status{UserName: user, LoggedIn: key != ""}
	if st.ServerURL, err = a.ep.CollectionURL(); err != nil {
		return nil, err
	}
	if st.MediaURL, err = a.ep.MediaURL(); err != nil {
		return nil, err
	}
	st.HostNum, st.HasHostNum = a.ep.HostNum()
	return st, nil
}

// hostKey returns the stored host key, or common.ErrNotLoggedIn.
func hostKey(ctx context.Context, prefs metadata.Repository) (string, error) {
	key, err := prefs.GetString(ctx, metadata.KeyHostKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", common.ErrNotLoggedIn
	}
	return key, nil
}
