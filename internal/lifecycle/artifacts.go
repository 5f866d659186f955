package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore is permanent storage for promoted recordings. Put must be
// all-or-nothing: a failed Put leaves no object under key.
type ArtifactStore interface {
	Put(ctx context.Context, key, localPath string) (string, error)
	Stat(ctx context.Context, key string) (location string, exists bool, err error)
	Remove(ctx context.Context, key string) error
}

// FSStore keeps artifacts in a local directory.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create permanent dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) location(key string) string {
	return filepath.Join(s.dir, key)
}

// Put copies into a hidden temp file next to the target and renames it into
// place, so readers never observe a half-written artifact.
func (s *FSStore) Put(ctx context.Context, key, localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp := filepath.Join(s.dir, fmt.Sprintf(".%s.%s.tmp", key, uuid.NewString()[:8]))
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(dst, &ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = dst.Sync()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, s.location(key))
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return s.location(key), nil
}

func (s *FSStore) Stat(_ context.Context, key string) (string, bool, error) {
	_, err := os.Stat(s.location(key))
	switch {
	case err == nil:
		return s.location(key), true, nil
	case errors.Is(err, os.ErrNotExist):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (s *FSStore) Remove(_ context.Context, key string) error {
	if err := os.Remove(s.location(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// MinIOStore keeps artifacts in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinIOStore(ctx context.Context, opts MinIOOptions) (*MinIOStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return &MinIOStore{client: client, bucket: opts.Bucket}, nil
}

func (s *MinIOStore) location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Put uploads the file. S3 objects only become visible once the upload
// completes, which gives the all-or-nothing guarantee.
func (s *MinIOStore) Put(ctx context.Context, key, localPath string) (string, error) {
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: "audio/wav"}); err != nil {
		return "", err
	}
	return s.location(key), nil
}

func (s *MinIOStore) Stat(ctx context.Context, key string) (string, bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, err
	}
	return s.location(key), true, nil
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
