// Package metadata is the persisted preference store: a key/value table in
// the collection database holding the login and endpoint state that must
// survive restarts (host key, user name, hostNum, custom sync server URLs).
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyHostKey        = "hkey"
	KeyUserName       = "username"
	KeyHostNum        = "hostNum"
	KeyCustomSyncURL  = "customSyncUrl"
	KeyCustomMediaURL = "customMediaSyncUrl"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// GetString returns "" for a missing key.
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error

	// GetInt reports ok=false for a missing key.
	GetInt(ctx context.Context, key string) (value int, ok bool, err error)
	SetInt(ctx context.Context, key string, value int) error
}
