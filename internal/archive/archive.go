// Package archive stores exported cache and snapshot documents in an
// S3-compatible object store.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("archive object not found")

// Config locates the bucket. Endpoint may carry an http:// or https://
// scheme, which then overrides UseSSL.
type Config struct {
	Endpoint   string `yaml:"endpoint"`
	Region     string `yaml:"region"`
	Bucket     string `yaml:"bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	UseSSL     bool   `yaml:"use_ssl"`
	Prefix     string `yaml:"prefix"`
	AutoCreate bool   `yaml:"auto_create"`
}

// Enabled reports whether an endpoint and bucket are configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

type client interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store writes documents under an optional key prefix.
type Store struct {
	client client
	bucket string
	prefix string
	logger *slog.Logger
}

// New connects to the object store and, with AutoCreate, creates the bucket
// when it does not exist yet.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	s := newStore(strings.TrimSpace(cfg.Bucket), cfg.Prefix, mc, logger)
	if cfg.AutoCreate {
		if err := s.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newStore(bucket, prefix string, c client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: c,
		bucket: bucket,
		prefix: cleanPrefix(prefix),
		logger: logger.With("component", "archive"),
	}
}

// Put uploads data under key and returns its s3:// location.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	if err := s.client.Put(ctx, s.bucket, k, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("put object %q: %w", k, err)
	}
	s.logger.Info("document archived", "bucket", s.bucket, "key", k, "bytes", len(data))
	return fmt.Sprintf("s3://%s/%s", s.bucket, k), nil
}

// Get downloads the document stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.bucket, k)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%s: %w", k, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get object %q: %w", k, err)
	}
	return data, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	s.logger.Info("bucket created", "bucket", s.bucket)
	return nil
}

func (s *Store) objectKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.Trim(prefix, "/"))
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}

func parseEndpoint(raw string, useSSL bool) (host string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return u.Host, u.Scheme == "https", nil
}

type minioClient struct {
	mc *minio.Client
}

func newMinioClient(cfg Config) (*minioClient, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{mc: mc}, nil
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.mc.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return mapMinioErr(err)
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return data, nil
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := m.mc.BucketExists(ctx, bucket)
	return ok, mapMinioErr(err)
}

func (m *minioClient) MakeBucket(ctx context.Context, bucket, region string) error {
	return mapMinioErr(m.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ErrObjectNotFound
		}
	}
	return err
}
