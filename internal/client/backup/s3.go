package backup

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/ankisync/internal/netx"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const presignExpiry = 15 * time.Minute

// S3Config addresses an S3 compatible bucket. An empty Endpoint uses AWS.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix string
}

type putPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Overridden in tests.
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
	newS3PresignClient    = func(c *s3.Client) putPresigner { return s3.NewPresignClient(c) }
)

// S3Sink uploads each backup as a new object through a presigned PUT.
type S3Sink struct {
	cfg    S3Config
	fs     afero.Fs
	http   *http.Client
	clock  clockwork.Clock
	signer putPresigner
}

func NewS3Sink(cfg S3Config, fs afero.Fs, httpClient *http.Client, clock clockwork.Clock) *S3Sink {
	if httpClient == nil {
		httpClient = netx.NewHTTPClient(0)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &S3Sink{cfg: cfg, fs: fs, http: httpClient, clock: clock}
}

func (s *S3Sink) presigner(ctx context.Context) (putPresigner, error) {
	if s.signer != nil {
		return s.signer, nil
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.cfg.Region)}
	if s.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	s.signer = newS3PresignClient(client)
	return s.signer, nil
}

// Key returns the object key for a backup taken now.
func (s *S3Sink) Key() string {
	d := s.clock.Now().UTC()
	return path.Join(s.cfg.Prefix, fmt.Sprintf("%d/%02d/%02d", d.Year(), d.Month(), d.Day()),
		filePrefix+d.Format(stampFmt)+"-"+uuid.NewString()+fileSuffix)
}

func (s *S3Sink) Save(ctx context.Context, file string) error {
	pc, err := s.presigner(ctx)
	if err != nil {
		return err
	}
	key := s.Key()
	req, err := pc.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return fmt.Errorf("failed to presign %s: %w", key, err)
	}

	f, err := s.fs.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}

	if err := netx.UploadToPresignedURL(ctx, s.http, req.URL, f, fi.Size()); err != nil {
		return fmt.Errorf("failed to upload backup %s: %w", key, err)
	}
	return nil
}
