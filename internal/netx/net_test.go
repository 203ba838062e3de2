package netx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUploadToPresignedURL(t *testing.T) {
	payload := []byte("collection bytes")

	t.Run("success 200 OK", func(t *testing.T) {
		var gotBody []byte
		var gotCT, gotMethod string
		var gotLen int64

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotLen = r.ContentLength
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		err := UploadToPresignedURL(context.Background(), ts.Client(), ts.URL+"/backups/x?X-Amz-Signature=abc",
			bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodPut {
			t.Fatalf("method = %q, want PUT", gotMethod)
		}
		if gotCT != "application/octet-stream" {
			t.Fatalf("Content-Type = %q", gotCT)
		}
		if gotLen != int64(len(payload)) || !bytes.Equal(gotBody, payload) {
			t.Fatalf("body = %q (len %d)", gotBody, gotLen)
		}
	})

	t.Run("non-200 returns error with body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("SignatureDoesNotMatch"))
		}))
		defer ts.Close()

		err := UploadToPresignedURL(context.Background(), ts.Client(), ts.URL, strings.NewReader("x"), 1)
		if err == nil || !strings.Contains(err.Error(), "SignatureDoesNotMatch") {
			t.Fatalf("want error with body, got %v", err)
		}
	})

	t.Run("bad url", func(t *testing.T) {
		err := UploadToPresignedURL(context.Background(), http.DefaultClient, "://bad", strings.NewReader("x"), 1)
		if err == nil {
			t.Fatalf("expected error for malformed url")
		}
	})
}

func TestIsNetworkError(t *testing.T) {
	dns := &net.DNSError{Err: "no such host", Name: "sync.invalid"}
	if !IsNetworkError(fmt.Errorf("post: %w", dns)) {
		t.Fatalf("dns error must be a network error")
	}
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if !IsNetworkError(dial) {
		t.Fatalf("dial error must be a network error")
	}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
	if IsNetworkError(read) {
		t.Fatalf("read error is not a network error")
	}
	if IsNetworkError(errors.New("boom")) {
		t.Fatalf("plain error is not a network error")
	}
}

func TestNewHTTPClient_Timeout(t *testing.T) {
	c := NewHTTPClient(7 * time.Second)
	if c.Timeout != 7*time.Second {
		t.Fatalf("timeout = %v", c.Timeout)
	}
}
