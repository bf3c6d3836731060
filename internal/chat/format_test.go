package chat

import (
	"testing"

	"github.com/sqlchat/sqlchat/internal/query"
)

func TestFormatResultsEmpty(t *testing.T) {
	got := FormatResults(query.Result{})
	if got.Count != 0 || got.Message != "No results found." {
		t.Fatalf("FormatResults() = %+v", got)
	}
	if got.Data == nil || got.Columns == nil {
		t.Fatal("Data and Columns should be empty, not nil")
	}
}

func TestFormatResultsSingleRow(t *testing.T) {
	got := FormatResults(query.Result{Columns: []string{"count"}, Rows: [][]any{{int64(20)}}})
	if got.Count != 1 || got.Message != "Found 1 result(s)." {
		t.Fatalf("FormatResults() = %+v", got)
	}
	if got.Data[0]["count"] != int64(20) {
		t.Fatalf("Data = %v", got.Data)
	}
}
