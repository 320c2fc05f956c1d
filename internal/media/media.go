// Package media puts user-supplied files (avatars, cover images) into an
// S3-compatible bucket and returns their public URL.
//
// Upload never returns an error. A failed upload is logged, the staged local
// file is deleted, and the result is nil; callers decide whether a missing
// URL is fatal (it is for avatars, not for cover images).
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/xid"
)

// Result describes a stored object.
type Result struct {
	URL         string
	Key         string
	Size        int64
	ContentType string
}

// Uploader is what the account service depends on.
type Uploader interface {
	Upload(ctx context.Context, localPath string) *Result
}

// Config selects the bucket and how URLs are built.
type Config struct {
	Region          string
	Endpoint        string // empty for AWS itself
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // CDN or bucket website; overrides Endpoint for URLs
	KeyPrefix       string
	UsePathStyle    bool // required by MinIO
}

// objectPutter is the slice of *s3.Client the uploader uses. Tests swap in a fake.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader implements Uploader with PutObject.
type S3Uploader struct {
	client objectPutter
	cfg    Config
	logger *slog.Logger
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the SDK's default chain applies (env, shared
// config, instance role).
func NewS3Uploader(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Uploader(client, cfg, logger), nil
}

func newS3Uploader(client objectPutter, cfg Config, logger *slog.Logger) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg, logger: logger}
}

// Upload stores the file at localPath. An empty path returns nil without
// touching the bucket.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) *Result {
	if localPath == "" {
		return nil
	}

	res, err := u.put(ctx, localPath)
	if err != nil {
		u.logger.Error("media upload failed", slog.String("path", localPath), slog.String("error", err.Error()))
		if rmErr := os.Remove(localPath); rmErr != nil && !os.IsNotExist(rmErr) {
			u.logger.Warn("removing staged file", slog.String("path", localPath), slog.String("error", rmErr.Error()))
		}
		return nil
	}

	u.logger.Info("media uploaded",
		slog.String("key", res.Key),
		slog.Int64("size", res.Size),
		slog.String("content_type", res.ContentType),
	)
	return res
}

func (u *S3Uploader) put(ctx context.Context, localPath string) (*Result, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	contentType, err := detectContentType(f, localPath)
	if err != nil {
		return nil, err
	}

	key := u.objectKey(localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &Result{
		URL:         u.publicURL(key),
		Key:         key,
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// objectKey is <prefix>/<xid><ext>; the original file name is not kept.
func (u *S3Uploader) objectKey(localPath string) string {
	name := xid.New().String() + strings.ToLower(filepath.Ext(localPath))
	prefix := strings.Trim(u.cfg.KeyPrefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (u *S3Uploader) publicURL(key string) string {
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	case u.cfg.Endpoint != "":
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
	}
}

// detectContentType sniffs the first 512 bytes, falling back to the file
// extension when sniffing is inconclusive. f is rewound afterwards.
func detectContentType(f *os.File, name string) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding %s: %w", name, err)
	}

	ct := http.DetectContentType(buf[:n])
	if ct == "application/octet-stream" || strings.HasPrefix(ct, "text/plain") {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
			return byExt, nil
		}
	}
	return ct, nil
}
