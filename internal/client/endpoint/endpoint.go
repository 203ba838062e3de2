// Package endpoint resolves the sync server base URLs from the user's
// custom server setting and the host number assigned by the server.
package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/ankisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ankisync/internal/common"
)

const defaultHostFmt = "https://sync%s.ankiweb.net/"

// Endpoint holds the custom server URLs and the host number. It is loaded
// from and saved to a preference store explicitly.
type Endpoint struct {
	mu             sync.RWMutex
	customURL      string
	customMediaURL string
	hostNum        int
	hasHostNum     bool
}

func New() *Endpoint {
	return &Endpoint{}
}

// Load replaces the in-memory state with the stored one.
func (e *Endpoint) Load(ctx context.Context, prefs metadata.Repository) error {
	custom, err := prefs.GetString(ctx, metadata.KeyCustomSyncURL)
	if err != nil {
		return err
	}
	media, err := prefs.GetString(ctx, metadata.KeyCustomMediaURL)
	if err != nil {
		return err
	}
	n, ok, err := prefs.GetInt(ctx, metadata.KeyHostNum)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.customURL, e.customMediaURL = custom, media
	e.hostNum, e.hasHostNum = n, ok
	return nil
}

// Save writes the in-memory state to prefs.
func (e *Endpoint) Save(ctx context.Context, prefs metadata.Repository) error {
	e.mu.RLock()
	custom, media, n, ok := e.customURL, e.customMediaURL, e.hostNum, e.hasHostNum
	e.mu.RUnlock()

	if err := prefs.SetString(ctx, metadata.KeyCustomSyncURL, custom); err != nil {
		return err
	}
	if err := prefs.SetString(ctx, metadata.KeyCustomMediaURL, media); err != nil {
		return err
	}
	if !ok {
		return prefs.Delete(ctx, metadata.KeyHostNum)
	}
	return prefs.SetInt(ctx, metadata.KeyHostNum, n)
}

func (e *Endpoint) SetHostNum(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hostNum, e.hasHostNum = n, true
}

func (e *Endpoint) HostNum() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hostNum, e.hasHostNum
}

// SetCustomURL changes the collection server URL; an empty value returns
// to the default server. The media URL follows it and the host number is
// reset.
func (e *Endpoint) SetCustomURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if _, err := parseBase(raw); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customURL = raw
	e.customMediaURL = ""
	e.hostNum, e.hasHostNum = 0, false
	return nil
}

// SetCustomMediaURL overrides the media server URL derived from the
// collection server URL.
func (e *Endpoint) SetCustomMediaURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if _, err := parseBase(raw); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customMediaURL = raw
	return nil
}

// Reset forgets the host number, as on logout.
func (e *Endpoint) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hostNum, e.hasHostNum = 0, false
}

func (e *Endpoint) CustomURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.customURL
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &common.CustomSyncServerURLError{URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &common.CustomSyncServerURLError{URL: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &common.CustomSyncServerURLError{URL: raw, Err: fmt.Errorf("missing host")}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func (e *Endpoint) defaultBase() string {
	host := ""
	if e.hasHostNum {
		host = fmt.Sprint(e.hostNum)
	}
	return fmt.Sprintf(defaultHostFmt, host)
}

// CollectionURL is the base URL collection verbs are appended to.
func (e *Endpoint) CollectionURL() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.customURL == "" {
		return e.defaultBase() + "sync/", nil
	}
	u, err := parseBase(e.customURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// MediaURL is the base URL media verbs are appended to. Without an explicit
// media URL a custom server serves media at msync/ in place of a trailing
// sync/, or below its URL otherwise.
func (e *Endpoint) MediaURL() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.customMediaURL != "":
		u, err := parseBase(e.customMediaURL)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	case e.customURL != "":
		u, err := parseBase(e.customURL)
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(u.Path, "/sync/") {
			u.Path = strings.TrimSuffix(u.Path, "sync/") + "msync/"
		} else {
			u.Path += "msync/"
		}
		return u.String(), nil
	default:
		return e.defaultBase() + "msync/", nil
	}
}
