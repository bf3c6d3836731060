// Package storage abstracts the object store that holds archived chat results.
package storage

import (
	"context"
	"errors"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is one stored payload. Metadata travels as object user metadata;
// keys come back lower-cased whatever case they were written in.
type Object struct {
	Key         string
	ContentType string
	Metadata    map[string]string
	Body        []byte
}

// MetadataValue looks a metadata key up case-insensitively.
func (o Object) MetadataValue(key string) (string, bool) {
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

type Receipt struct {
	Key  string
	Size int64
	ETag string
}

type ObjectStore interface {
	Save(ctx context.Context, obj Object) (Receipt, error)
	Load(ctx context.Context, key string) (Object, error)
}
