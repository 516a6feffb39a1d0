package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive keeps a copy of every export in an S3-compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Archive{client: client, bucket: cfg.Bucket, expiry: 24 * time.Hour, now: time.Now}, nil
}

// objectName files exports under their key, newest last when listed.
func (a *Archive) objectName(key, filename string) string {
	return path.Join(sanitizeFilename(key), a.now().UTC().Format("20060102T150405Z")+"-"+filename)
}

// Put uploads res and returns a presigned download URL.
func (a *Archive) Put(ctx context.Context, key string, res *Result) (string, error) {
	name := a.objectName(key, res.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(res.Data), int64(len(res.Data)),
		minio.PutObjectOptions{ContentType: res.MimeType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, name, a.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", name, err)
	}
	return u.String(), nil
}
