package client

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/buildinfo"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/transport"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/encoding/json"
)

// HTTPMediaServer implements MediaServer over a Transport. The host key is
// sent as a form field with begin; later verbs carry the session key.
type HTTPMediaServer struct {
	t        *transport.Transport
	hostKey  string
	compress bool
	validate *validator.Validate
}

func NewMediaServer(t *transport.Transport, hostKey string, compress bool) *HTTPMediaServer {
	t.SetHostKey("")
	return &HTTPMediaServer{t: t, hostKey: hostKey, compress: compress, validate: newValidator()}
}

func (s *HTTPMediaServer) raw(ctx context.Context, method string, payload []byte, compress bool) ([]byte, error) {
	resp, err := s.t.Request(ctx, method, bytes.NewReader(payload), compress)
	if err != nil {
		return nil, err
	}
	if resp.Forbidden() {
		_ = resp.Close()
		return nil, common.ErrBadAuth
	}
	return resp.Bytes()
}

func callData[T any](ctx context.Context, s *HTTPMediaServer, method string, req any) (T, error) {
	var env envelope[T]
	payload, err := json.Marshal(req)
	if err != nil {
		return env.Data, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	body, err := s.raw(ctx, method, payload, s.compress)
	if err != nil {
		return env.Data, err
	}
	return unwrap[T](s, method, body)
}

func unwrap[T any](s *HTTPMediaServer, method string, body []byte) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return env.Data, fmt.Errorf("%w: %s: malformed response: %v", common.ErrRemoteDB, method, err)
	}
	if env.Err != "" {
		return env.Data, &common.MediaServerError{Verb: method, Message: env.Err}
	}
	return env.Data, nil
}

func (s *HTTPMediaServer) Begin(ctx context.Context) (*BeginResponse, error) {
	s.t.SetVars(map[string]string{"k": s.hostKey, "v": buildinfo.ClientVersion()})
	resp, err := callData[BeginResponse](ctx, s, "begin", empty{})
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(resp); err != nil {
		return nil, fmt.Errorf("%w: begin: %v", common.ErrRemoteDB, err)
	}
	s.t.SetVars(map[string]string{"sk": resp.SessionKey})
	return &resp, nil
}

func (s *HTTPMediaServer) MediaChanges(ctx context.Context, lastUsn int) ([]models.MediaChange, error) {
	return callData[[]models.MediaChange](ctx, s, "mediaChanges", mediaChangesRequest{LastUsn: lastUsn})
}

// DownloadFiles returns the raw zip; this verb has no JSON envelope.
func (s *HTTPMediaServer) DownloadFiles(ctx context.Context, files []string) ([]byte, error) {
	payload, err := json.Marshal(downloadFilesRequest{Files: files})
	if err != nil {
		return nil, fmt.Errorf("failed to encode downloadFiles request: %w", err)
	}
	return s.raw(ctx, "downloadFiles", payload, s.compress)
}

func (s *HTTPMediaServer) UploadChanges(ctx context.Context, zip []byte) (int, int, error) {
	body, err := s.raw(ctx, "uploadChanges", zip, false)
	if err != nil {
		return 0, 0, err
	}
	pair, err := unwrap[[]int](s, "uploadChanges", body)
	if err != nil {
		return 0, 0, err
	}
	if len(pair) != 2 {
		return 0, 0, fmt.Errorf("%w: uploadChanges: want [processed, lastUsn], got %v", common.ErrRemoteDB, pair)
	}
	return pair[0], pair[1], nil
}

func (s *HTTPMediaServer) MediaSanity(ctx context.Context, localCount int64) (string, error) {
	return callData[string](ctx, s, "mediaSanity", mediaSanityRequest{Local: localCount})
}
