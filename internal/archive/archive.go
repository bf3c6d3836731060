// Package archive keeps successful chat results as parquet objects.
package archive

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/storage"
)

const (
	contentType = "application/vnd.apache.parquet"
	rowsKey     = "result-rows"
)

type Archiver struct {
	store storage.ObjectStore
	now   func() time.Time
	newID func() string
}

func New(store storage.ObjectStore) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Archiver{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}, nil
}

// Archive stores the result and returns its object key.
func (a *Archiver) Archive(ctx context.Context, question, sql string, result query.Result) (string, error) {
	createdAt := a.now().UTC()
	data, err := EncodeResultsToParquet(question, sql, result, createdAt)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildArchivePath(createdAt, a.newID())
	if err != nil {
		return "", err
	}
	obj := storage.Object{
		Key:         key,
		ContentType: contentType,
		Metadata:    map[string]string{rowsKey: strconv.Itoa(len(result.Rows))},
		Body:        data,
	}
	if _, err := a.store.Save(ctx, obj); err != nil {
		return "", fmt.Errorf("store archive: %w", err)
	}
	return key, nil
}

// Read loads an archived result by the key Archive returned. The row count
// recorded at write time must match what decodes.
func (a *Archiver) Read(ctx context.Context, key string) ([]Entry, error) {
	if err := storage.ValidateArchivePath(key); err != nil {
		return nil, err
	}
	obj, err := a.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	entries, err := DecodeParquet(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("decode archive %q: %w", key, err)
	}
	if raw, ok := obj.MetadataValue(rowsKey); ok {
		if want, err := strconv.Atoi(raw); err == nil && want != len(entries) {
			return nil, fmt.Errorf("archive %q holds %d rows, recorded %d", key, len(entries), want)
		}
	}
	return entries, nil
}
