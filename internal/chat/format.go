package chat

import (
	"fmt"

	"github.com/sqlchat/sqlchat/internal/query"
)

type Results struct {
	Count   int              `json:"count"`
	Message string           `json:"message"`
	Data    []map[string]any `json:"data"`
	Columns []string         `json:"columns"`
}

// FormatResults summarizes a result set. Values are passed through as the
// driver returned them.
func FormatResults(result query.Result) Results {
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	if len(result.Rows) == 0 {
		return Results{
			Count:   0,
			Message: "No results found.",
			Data:    []map[string]any{},
			Columns: columns,
		}
	}
	return Results{
		Count:   len(result.Rows),
		Message: fmt.Sprintf("Found %d result(s).", len(result.Rows)),
		Data:    result.Records(),
		Columns: columns,
	}
}
