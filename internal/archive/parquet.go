package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlchat/sqlchat/internal/query"
)

type archivedRow struct {
	Question        string `parquet:"question"`
	SQL             string `parquet:"sql"`
	RowIndex        int64  `parquet:"row_index"`
	RowJSON         string `parquet:"row_json"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// Entry is one archived result row.
type Entry struct {
	Question  string         `json:"question"`
	SQL       string         `json:"sql"`
	RowIndex  int64          `json:"row_index"`
	Row       map[string]any `json:"row"`
	CreatedAt time.Time      `json:"created_at"`
}

// EncodeResultsToParquet writes one parquet row per result row, each carrying
// the question and statement that produced it.
func EncodeResultsToParquet(question, sql string, result query.Result, createdAt time.Time) ([]byte, error) {
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("result rows are required")
	}

	createdMs := createdAt.UTC().UnixMilli()
	rows := make([]archivedRow, 0, len(result.Rows))
	for index, record := range result.Records() {
		rowJSON, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", index, err)
		}
		rows = append(rows, archivedRow{
			Question:        question,
			SQL:             sql,
			RowIndex:        int64(index),
			RowJSON:         string(rowJSON),
			CreatedAtUnixMs: createdMs,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[archivedRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeParquet(data []byte) ([]Entry, error) {
	reader := parquet.NewGenericReader[archivedRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]archivedRow, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	entries := make([]Entry, 0, count)
	for _, row := range rows[:count] {
		record := map[string]any{}
		if err := json.Unmarshal([]byte(row.RowJSON), &record); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", row.RowIndex, err)
		}
		entries = append(entries, Entry{
			Question:  row.Question,
			SQL:       row.SQL,
			RowIndex:  row.RowIndex,
			Row:       record,
			CreatedAt: time.UnixMilli(row.CreatedAtUnixMs).UTC(),
		})
	}
	return entries, nil
}
