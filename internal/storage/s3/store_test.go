package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlchat/sqlchat/internal/storage"
)

type fakeBucket struct {
	objects   map[string]storage.Object
	present   bool
	created   string
	existsErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]storage.Object{}, present: true}
}

func (f *fakeBucket) name() string { return "results" }

func (f *fakeBucket) put(_ context.Context, key string, obj storage.Object) (storage.Receipt, error) {
	f.objects[key] = obj
	return storage.Receipt{Key: key, Size: int64(len(obj.Body)), ETag: "etag-1"}, nil
}

func (f *fakeBucket) get(_ context.Context, key string) (storage.Object, error) {
	obj, ok := f.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return obj, nil
}

func (f *fakeBucket) exists(context.Context) (bool, error) {
	return f.present, f.existsErr
}

func (f *fakeBucket) create(_ context.Context, region string) error {
	f.created = region
	f.present = true
	return nil
}

func TestSaveWritesUnderPrefix(t *testing.T) {
	fake := newFakeBucket()
	store := newStore(fake, "/sqlchat/prod/")

	receipt, err := store.Save(context.Background(), storage.Object{
		Key:         "chat-results/date=2026-10-17/a.parquet",
		ContentType: "application/vnd.apache.parquet",
		Metadata:    map[string]string{"result-rows": "2"},
		Body:        []byte("PAR1"),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if receipt.Key != "chat-results/date=2026-10-17/a.parquet" || receipt.Size != 4 {
		t.Fatalf("receipt = %+v", receipt)
	}
	stored, ok := fake.objects["sqlchat/prod/chat-results/date=2026-10-17/a.parquet"]
	if !ok {
		t.Fatalf("objects = %v", fake.objects)
	}
	if stored.ContentType != "application/vnd.apache.parquet" || stored.Metadata["result-rows"] != "2" {
		t.Fatalf("stored = %+v", stored)
	}

	loaded, err := store.Load(context.Background(), "chat-results/date=2026-10-17/a.parquet")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Key != "chat-results/date=2026-10-17/a.parquet" || string(loaded.Body) != "PAR1" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestObjectKeyRejectsUncleanPaths(t *testing.T) {
	store := newStore(newFakeBucket(), "")
	for _, key := range []string{"", "../secrets.txt", "..", "a/../../b", "a//b", "a/./b"} {
		if _, err := store.Save(context.Background(), storage.Object{Key: key}); err == nil {
			t.Fatalf("Save(%q) error = nil", key)
		}
	}
	if key, err := store.objectKey("/chat-results/x.parquet"); err != nil || key != "chat-results/x.parquet" {
		t.Fatalf("objectKey() = %q, %v", key, err)
	}
}

func TestLoadKeepsNotFound(t *testing.T) {
	store := newStore(newFakeBucket(), "p")
	if _, err := store.Load(context.Background(), "chat-results/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := newFakeBucket()
	fake.present = false
	store := newStore(fake, "")

	if err := store.ensureBucket(context.Background(), "eu-central-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.created != "eu-central-1" {
		t.Fatalf("created region = %q", fake.created)
	}
}

func TestPing(t *testing.T) {
	fake := newFakeBucket()
	store := newStore(fake, "")
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	fake.present = false
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected error for missing bucket")
	}
	fake.existsErr = errors.New("connection refused")
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected error when the bucket check fails")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		raw    string
		useSSL bool
		host   string
		secure bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"minio:9000", true, "minio:9000", true},
		{"https://minio.example.com", false, "minio.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.raw, tc.useSSL)
		if err != nil || host != tc.host || secure != tc.secure {
			t.Fatalf("splitEndpoint(%q, %v) = %q, %v, %v", tc.raw, tc.useSSL, host, secure, err)
		}
	}
	for _, raw := range []string{"", "ftp://minio", "https://"} {
		if _, _, err := splitEndpoint(raw, false); err == nil {
			t.Fatalf("splitEndpoint(%q) error = nil", raw)
		}
	}
}

func TestStorageMetadataLookupIgnoresCase(t *testing.T) {
	obj := storage.Object{Metadata: map[string]string{"Result-Rows": "3"}}
	if v, ok := obj.MetadataValue("result-rows"); !ok || v != "3" {
		t.Fatalf("MetadataValue() = %q, %v", v, ok)
	}
}
