package backup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

func writeFile(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o600))
}

func TestLocalSink_KeepsNewest(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(epoch)
	writeFile(t, fs, "/data/collection.anki2", "v1")
	sink := NewLocalSink(fs, "/data/backups", 2, clock)
	ctx := context.Background()

	for _, body := range []string{"v1", "v2", "v3"} {
		writeFile(t, fs, "/data/collection.anki2", body)
		require.NoError(t, sink.Save(ctx, "/data/collection.anki2"))
		clock.Advance(time.Second)
	}

	names, err := sink.List()
	require.NoError(t, err)
	require.Equal(t, []string{
		"collection-20240310-153001.000.anki2",
		"collection-20240310-153002.000.anki2",
	}, names)

	b, err := afero.ReadFile(fs, "/data/backups/"+names[1])
	require.NoError(t, err)
	assert.Equal(t, "v3", string(b))
}

func TestLocalSink_MissingSource(t *testing.T) {
	sink := NewLocalSink(afero.NewMemMapFs(), "/b", 3, nil)
	err := sink.Save(context.Background(), "/nope.anki2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to back up")
}

type failingSink struct{ calls int }

func (f *failingSink) Save(context.Context, string) error {
	f.calls++
	return errors.New("full")
}

func TestMulti_StopsAtFirstFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/c.anki2", "x")
	bad, after := &failingSink{}, &failingSink{}

	err := Multi{NewLocalSink(fs, "/b", 1, nil), bad, after}.Save(context.Background(), "/c.anki2")
	require.EqualError(t, err, "full")
	assert.Equal(t, 1, bad.calls)
	assert.Zero(t, after.calls)
}

type fakePresigner struct {
	url string
	key string
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.key = aws.ToString(in.Key)
	return &v4.PresignedHTTPRequest{URL: f.url, Method: http.MethodPut}, nil
}

func TestS3Sink_UploadsThroughPresignedURL(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/c.anki2", "collection bytes")
	sink := NewS3Sink(S3Config{Bucket: "b", Prefix: "ankisync"}, fs, srv.Client(), clockwork.NewFakeClockAt(epoch))
	pre := &fakePresigner{url: srv.URL + "/b/obj"}
	sink.signer = pre

	require.NoError(t, sink.Save(context.Background(), "/c.anki2"))
	assert.Equal(t, "collection bytes", got)
	assert.True(t, strings.HasPrefix(pre.key, "ankisync/2024/03/10/collection-20240310-153000.000-"), pre.key)
}

func TestS3Sink_UploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/c.anki2", "x")
	sink := NewS3Sink(S3Config{Bucket: "b"}, fs, srv.Client(), nil)
	sink.signer = &fakePresigner{url: srv.URL}

	err := sink.Save(context.Background(), "/c.anki2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestS3Sink_BuildsClientFromConfig(t *testing.T) {
	origLoad, origNew, origPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient = origLoad, origNew, origPre
	})

	var region, endpoint string
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		region = lo.Region
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		endpoint = aws.ToString(o.BaseEndpoint)
		assert.True(t, o.UsePathStyle)
		return &s3.Client{}
	}
	fake := &fakePresigner{}
	newS3PresignClient = func(*s3.Client) putPresigner { return fake }

	sink := NewS3Sink(S3Config{Region: "eu-central-1", Endpoint: "http://127.0.0.1:9000", AccessKey: "a", SecretKey: "s"}, afero.NewMemMapFs(), nil, nil)
	pc, err := sink.presigner(context.Background())
	require.NoError(t, err)
	assert.Same(t, fake, pc)
	assert.Equal(t, "eu-central-1", region)
	assert.Equal(t, "http://127.0.0.1:9000", endpoint)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Sink(S3Config{}, afero.NewMemMapFs(), nil, nil).presigner(context.Background())
	require.ErrorContains(t, err, "load-fail")
}
