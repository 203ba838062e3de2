package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/ankisync/internal/buildinfo"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/transport"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/encoding/json"
)

// HTTPCollectionServer implements CollectionServer over a Transport.
type HTTPCollectionServer struct {
	t        *transport.Transport
	compress bool
	validate *validator.Validate
}

func NewCollectionServer(t *transport.Transport, compress bool) *HTTPCollectionServer {
	return &HTTPCollectionServer{t: t, compress: compress, validate: newValidator()}
}

func (s *HTTPCollectionServer) post(ctx context.Context, method string, req any) (*transport.Response, error) {
	var payload io.Reader
	if req != nil {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
		}
		payload = bytes.NewReader(body)
	}
	resp, err := s.t.Request(ctx, method, payload, s.compress)
	if err != nil {
		return nil, err
	}
	if resp.Forbidden() {
		_ = resp.Close()
		return nil, common.ErrBadAuth
	}
	return resp, nil
}

func (s *HTTPCollectionServer) call(ctx context.Context, method string, req, dst any) error {
	resp, err := s.post(ctx, method, req)
	if err != nil {
		return err
	}
	body, err := resp.Bytes()
	if err != nil {
		return err
	}
	if dst == nil {
		return nil
	}
	return decode(s.validate, method, body, dst)
}

// HostKey exchanges credentials for a host key and starts sending it with
// every later request.
func (s *HTTPCollectionServer) HostKey(ctx context.Context, user, password string) (string, error) {
	s.t.SetHostKey("")
	var resp hostKeyResponse
	if err := s.call(ctx, "hostKey", hostKeyRequest{User: user, Password: password}, &resp); err != nil {
		return "", err
	}
	s.t.SetHostKey(resp.Key)
	return resp.Key, nil
}

func (s *HTTPCollectionServer) Meta(ctx context.Context) (*MetaResponse, error) {
	var resp MetaResponse
	req := metaRequest{Version: common.SyncVersion, ClientVersion: buildinfo.ClientVersion()}
	if err := s.call(ctx, "meta", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPCollectionServer) Start(ctx context.Context, minUsn int, localIsNewer bool, graves models.Graves) (models.Graves, error) {
	var resp models.Graves
	err := s.call(ctx, "start", startRequest{MinUsn: minUsn, LNewer: localIsNewer, Graves: graves}, &resp)
	return resp, err
}

func (s *HTTPCollectionServer) ApplyChanges(ctx context.Context, changes models.Changes) (models.Changes, error) {
	var resp models.Changes
	err := s.call(ctx, "applyChanges", applyChangesRequest{Changes: changes}, &resp)
	return resp, err
}

func (s *HTTPCollectionServer) Chunk(ctx context.Context) (models.Chunk, error) {
	var resp models.Chunk
	err := s.call(ctx, "chunk", empty{}, &resp)
	return resp, err
}

func (s *HTTPCollectionServer) ApplyChunk(ctx context.Context, chunk models.Chunk) error {
	return s.call(ctx, "applyChunk", applyChunkRequest{Chunk: chunk}, nil)
}

func (s *HTTPCollectionServer) SanityCheck(ctx context.Context, counts models.SanityCounts) (*SanityResponse, error) {
	var resp SanityResponse
	if err := s.call(ctx, "sanityCheck2", sanityRequest{Client: counts}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPCollectionServer) Finish(ctx context.Context) (int64, error) {
	var mod int64
	err := s.call(ctx, "finish", empty{}, &mod)
	return mod, err
}

func (s *HTTPCollectionServer) Abort(ctx context.Context) error {
	return s.call(ctx, "abort", empty{}, nil)
}

func (s *HTTPCollectionServer) Download(ctx context.Context, dst io.Writer) (int64, error) {
	resp, err := s.post(ctx, "download", nil)
	if err != nil {
		return 0, err
	}
	return s.t.Download(resp, dst)
}

func (s *HTTPCollectionServer) Upload(ctx context.Context, src io.Reader) (string, error) {
	resp, err := s.t.Request(ctx, "upload", src, true)
	if err != nil {
		return "", err
	}
	if resp.Forbidden() {
		_ = resp.Close()
		return "", common.ErrBadAuth
	}
	body, err := resp.Bytes()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
