package client

import (
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/segmentio/encoding/json"
)

type hostKeyRequest struct {
	User     string `json:"u"`
	Password string `json:"p"`
}

type hostKeyResponse struct {
	Key string `json:"key" validate:"required"`
}

type metaRequest struct {
	Version       int    `json:"v"`
	ClientVersion string `json:"cv"`
}

// MetaResponse is the server's collection header and session verdict.
type MetaResponse struct {
	Mod int64 `json:"mod" validate:"gte=0"`
	Scm int64 `json:"scm" validate:"gte=0"`
	Usn int   `json:"usn" validate:"gte=0"`
	// Ts is the server wall clock in seconds.
	Ts  int64  `json:"ts" validate:"gt=0"`
	Msg string `json:"msg"`
	// Cont is false when the server refuses to sync, with Msg telling why.
	Cont    bool `json:"cont"`
	HostNum *int `json:"hostNum,omitempty"`
}

type startRequest struct {
	MinUsn int           `json:"minUsn"`
	LNewer bool          `json:"lnewer"`
	Graves models.Graves `json:"graves"`
}

type applyChangesRequest struct {
	Changes models.Changes `json:"changes"`
}

type applyChunkRequest struct {
	Chunk models.Chunk `json:"chunk"`
}

type sanityRequest struct {
	Client models.SanityCounts `json:"client"`
}

// SanityResponse carries the server verdict and, on mismatch, both sides'
// counts for diagnostics.
type SanityResponse struct {
	Status string          `json:"status" validate:"required"`
	Client json.RawMessage `json:"c,omitempty"`
	Server json.RawMessage `json:"s,omitempty"`
}

// OK reports whether the counts matched.
func (r SanityResponse) OK() bool { return r.Status == "ok" }

type empty struct{}

// BeginResponse opens a media session.
type BeginResponse struct {
	SessionKey string `json:"sk" validate:"required"`
	Usn        int    `json:"usn" validate:"gte=0"`
}

type mediaChangesRequest struct {
	LastUsn int `json:"lastUsn"`
}

type downloadFilesRequest struct {
	Files []string `json:"files"`
}

type mediaSanityRequest struct {
	Local int64 `json:"local"`
}

type envelope[T any] struct {
	Data T      `json:"data"`
	Err  string `json:"err"`
}
