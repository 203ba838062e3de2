// Package transport sends one sync verb as a multipart/form-data POST and
// hands back the raw response. Request bodies are assembled in a temp file
// so collection and media uploads never sit in memory.
package transport

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"sync"

	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/filex"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/dmitrijs2005/ankisync/internal/netx"
	"github.com/spf13/afero"
)

// Boundary is the fixed multipart boundary the sync servers expect.
const Boundary = "Anki-sync-boundary"

const progressStep = 1024

// ProgressFunc receives the running totals of bytes sent and received.
type ProgressFunc func(sent, received int64)

// BaseURLFunc returns the base URL verbs are appended to.
type BaseURLFunc func() (string, error)

type Options struct {
	Client   *http.Client
	Fs       afero.Fs
	TempDir  string
	Progress ProgressFunc
	Logger   logging.Logger
}

// Transport is not safe for concurrent requests; a sync uses one at a time.
type Transport struct {
	baseURL  BaseURLFunc
	client   *http.Client
	fs       afero.Fs
	tempDir  string
	progress ProgressFunc
	log      logging.Logger

	hostKey    string
	sessionKey string
	vars       map[string]string

	mu       sync.Mutex
	sent     int64
	received int64
	nextSend int64
	nextRecv int64
}

func New(baseURL BaseURLFunc, opts Options) (*Transport, error) {
	skey, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, fmt.Errorf("failed to make session key: %w", err)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.TempDir == "" {
		opts.TempDir = afero.GetTempDir(opts.Fs, "ankisync")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Transport{
		baseURL:    baseURL,
		client:     opts.Client,
		fs:         opts.Fs,
		tempDir:    opts.TempDir,
		progress:   opts.Progress,
		log:        opts.Logger,
		sessionKey: skey,
		vars:       map[string]string{},
		nextSend:   progressStep,
		nextRecv:   progressStep,
	}, nil
}

// SetHostKey sets the credential sent as "k". While it is empty, neither
// "k" nor "s" is sent.
func (t *Transport) SetHostKey(key string) { t.hostKey = key }

func (t *Transport) HostKey() string { return t.hostKey }

func (t *Transport) SessionKey() string { return t.sessionKey }

// SetVars replaces the extra form fields sent with every request.
func (t *Transport) SetVars(vars map[string]string) {
	t.vars = make(map[string]string, len(vars))
	for k, v := range vars {
		t.vars[k] = v
	}
}

// Counters returns the bytes sent and received so far.
func (t *Transport) Counters() (sent, received int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.received
}

func (t *Transport) count(sent, received int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent += sent
	t.received += received
	if t.sent < t.nextSend && t.received < t.nextRecv {
		return
	}
	t.nextSend = (t.sent/progressStep + 1) * progressStep
	t.nextRecv = (t.received/progressStep + 1) * progressStep
	if t.progress != nil {
		t.progress(t.sent, t.received)
	}
}

func (t *Transport) fields(compress bool) map[string]string {
	f := map[string]string{"c": "0"}
	if compress {
		f["c"] = "1"
	}
	if t.hostKey != "" {
		f["k"] = t.hostKey
		f["s"] = t.sessionKey
	}
	for k, v := range t.vars {
		f[k] = v
	}
	return f
}

func (t *Transport) writeBody(w io.Writer, payload io.Reader, compress bool) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(Boundary); err != nil {
		return err
	}

	fields := t.fields(compress)
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}

	if payload != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="data"; filename="data"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if compress {
			gz := gzip.NewWriter(part)
			if _, err := io.Copy(gz, payload); err != nil {
				return err
			}
			if err := gz.Close(); err != nil {
				return err
			}
		} else if _, err := io.Copy(part, payload); err != nil {
			return err
		}
	}
	return mw.Close()
}

// Request posts method with an optional payload. A 200 or 403 response is
// returned to the caller, which must close it.
func (t *Transport) Request(ctx context.Context, method string, payload io.Reader, compress bool) (*Response, error) {
	base, err := t.baseURL()
	if err != nil {
		return nil, err
	}

	body, err := filex.TempFile(t.fs, t.tempDir, "req-*")
	if err != nil {
		return nil, err
	}
	defer filex.CloseAndRemove(t.fs, body)

	if err := t.writeBody(body, payload, compress); err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	size, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+method, &countingReader{r: body, add: func(n int64) { t.count(n, 0) }})
	if err != nil {
		return nil, &common.CustomSyncServerURLError{URL: base, Err: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+Boundary)
	t.count(headerSize(req.Header)+int64(len(req.URL.String())), 0)

	t.log.Debug(ctx, "sync request", "method", method, "bytes", size, "compressed", compress)
	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if netx.IsNetworkError(err) {
			return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
		}
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	t.count(0, headerSize(resp.Header))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
	default:
		_ = resp.Body.Close()
		return nil, &common.UnexpectedResponseError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       &countingReadCloser{rc: resp.Body, add: func(n int64) { t.count(0, n) }},
	}, nil
}

// Download streams the response body into dst and closes the response.
func (t *Transport) Download(resp *Response, dst io.Writer) (int64, error) {
	defer resp.Close()
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download response: %w", err)
	}
	return n, nil
}

func headerSize(h http.Header) int64 {
	var n int64
	for k, vs := range h {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 4)
		}
	}
	return n
}

// Response is a 200 or 403 answer.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

func (r *Response) Forbidden() bool {
	return r.StatusCode == http.StatusForbidden
}

// Bytes reads the whole body and closes it.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return b, nil
}

func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

type countingReader struct {
	r   io.Reader
	add func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.add(int64(n))
	}
	return n, err
}

type countingReadCloser struct {
	rc  io.ReadCloser
	add func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 {
		c.add(int64(n))
	}
	return n, err
}

func (c *countingReadCloser) Close() error { return c.rc.Close() }
