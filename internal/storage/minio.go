// Package storage archives content snapshots in MinIO (or any S3-compatible
// object store).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/siteadmin/content-services/internal/config"
)

// MinIOStorage writes objects under a per-run prefix in one bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg config.MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// WithPrefix returns a copy that writes under prefix, e.g. a backup run id.
func (s *MinIOStorage) WithPrefix(prefix string) *MinIOStorage {
	out := *s
	out.prefix = strings.Trim(prefix, "/")
	return &out
}

// SnapshotPrefix names a backup run taken at t.
func SnapshotPrefix(t time.Time) string {
	return "backups/" + t.UTC().Format("20060102T150405Z")
}

func (s *MinIOStorage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// PutJSON stores v as an indented JSON object.
func (s *MinIOStorage) PutJSON(ctx context.Context, key string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// GetJSON decodes the object at key into v.
func (s *MinIOStorage) GetJSON(ctx context.Context, key string, v interface{}) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	return json.NewDecoder(obj).Decode(v)
}
