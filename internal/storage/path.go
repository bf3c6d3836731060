package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// ArchivePrefix is the key prefix for archived chat results.
const ArchivePrefix = "chat-results"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildArchivePath returns chat-results/date=YYYY-MM-DD/<id>.parquet with the
// date taken in UTC.
func BuildArchivePath(createdAt time.Time, id string) (string, error) {
	if err := validatePathComponent(id, "archive id"); err != nil {
		return "", err
	}
	ts := createdAt.UTC()
	return path.Join(
		ArchivePrefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		id+".parquet",
	), nil
}

// ValidateArchivePath accepts only keys produced by BuildArchivePath.
func ValidateArchivePath(key string) error {
	if !archivePathPattern.MatchString(key) {
		return fmt.Errorf("invalid archive key: %q", key)
	}
	return nil
}

var archivePathPattern = regexp.MustCompile(`^` + ArchivePrefix + `/date=\d{4}-\d{2}-\d{2}/[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}\.parquet$`)

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
