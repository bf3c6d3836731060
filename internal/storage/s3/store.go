// Package s3 stores archived results in an S3-compatible bucket through minio-go.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlchat/sqlchat/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is the slice of the S3 API the store needs, bound to one bucket.
type bucket interface {
	name() string
	put(ctx context.Context, key string, obj storage.Object) (storage.Receipt, error)
	get(ctx context.Context, key string) (storage.Object, error)
	exists(ctx context.Context) (bool, error)
	create(ctx context.Context, region string) error
}

type Store struct {
	bucket bucket
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("s3 bucket is required")
	}
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(&minioBucket{client: client, bucket: name}, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(b bucket, prefix string) *Store {
	prefix = path.Clean("/" + strings.TrimSpace(prefix))
	return &Store{bucket: b, prefix: strings.TrimPrefix(prefix, "/")}
}

func (s *Store) Save(ctx context.Context, obj storage.Object) (storage.Receipt, error) {
	key, err := s.objectKey(obj.Key)
	if err != nil {
		return storage.Receipt{}, err
	}
	receipt, err := s.bucket.put(ctx, key, obj)
	if err != nil {
		return storage.Receipt{}, fmt.Errorf("save %s/%s: %w", s.bucket.name(), key, err)
	}
	// callers address objects without the store prefix
	receipt.Key = obj.Key
	return receipt, nil
}

func (s *Store) Load(ctx context.Context, key string) (storage.Object, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.Object{}, err
	}
	obj, err := s.bucket.get(ctx, objectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.Object{}, err
	}
	if err != nil {
		return storage.Object{}, fmt.Errorf("load %s/%s: %w", s.bucket.name(), objectKey, err)
	}
	obj.Key = key
	return obj, nil
}

// Ping fails unless the bucket exists and answers.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.bucket.exists(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("check bucket %q: %w", s.bucket.name(), err)
	case !ok:
		return fmt.Errorf("bucket %q does not exist", s.bucket.name())
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	ok, err := s.bucket.exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket.name(), err)
	}
	if ok {
		return nil
	}
	if err := s.bucket.create(ctx, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket.name(), err)
	}
	return nil
}

// objectKey rejects keys that are not already clean relative paths, then
// places them under the store prefix.
func (s *Store) objectKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	if path.Clean(key) != key || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path.Join(s.prefix, key), nil
}

// splitEndpoint accepts host:port or a URL. An explicit scheme decides TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported s3 endpoint scheme %q", u.Scheme)
	}
}

type minioBucket struct {
	client *minio.Client
	bucket string
}

func (m *minioBucket) name() string { return m.bucket }

func (m *minioBucket) put(ctx context.Context, key string, obj storage.Object) (storage.Receipt, error) {
	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(obj.Body), int64(len(obj.Body)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: obj.Metadata,
	})
	if err != nil {
		return storage.Receipt{}, notFound(err)
	}
	return storage.Receipt{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}

func (m *minioBucket) get(ctx context.Context, key string) (storage.Object, error) {
	reader, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return storage.Object{}, notFound(err)
	}
	defer func() { _ = reader.Close() }()

	info, err := reader.Stat()
	if err != nil {
		return storage.Object{}, notFound(err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return storage.Object{}, notFound(err)
	}
	metadata := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		metadata[strings.ToLower(k)] = v
	}
	return storage.Object{ContentType: info.ContentType, Metadata: metadata, Body: body}, nil
}

func (m *minioBucket) exists(ctx context.Context) (bool, error) {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	return ok, notFound(err)
}

func (m *minioBucket) create(ctx context.Context, region string) error {
	return notFound(m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}))
}

// notFound maps missing keys and buckets to storage.ErrObjectNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
