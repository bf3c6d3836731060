package sqlchatctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type chatResults struct {
	Count   int              `json:"count"`
	Message string           `json:"message"`
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
}

type chatReply struct {
	Success         bool        `json:"success"`
	Query           string      `json:"query"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	Results         chatResults `json:"results"`
	ArchiveKey      string      `json:"archive_key"`
}

func newRootCommand(defaults Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "sqlchatctl",
		Short:         "Ask questions about the shop database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return err })

	flags := root.PersistentFlags()
	flags.String("base-url", firstNonEmpty(defaults.BaseURL, defaultBaseURL), "chat API base URL")
	flags.String("api-key", defaults.APIKey, "API key sent as X-API-Key")
	flags.Duration("timeout", durationOr(defaults.Timeout, defaultTimeout), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		newAskCommand(defaults),
		newExportCommand(defaults),
		newGetCommand(defaults, "test", "Check the database connection and model settings", "/api/test"),
		newGetCommand(defaults, "health", "Show service health", "/health"),
		newGetCommand(defaults, "schema", "Show the tables the model is told about", "/api/schema"),
	)
	return root
}

func newAskCommand(defaults Options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Translate a question to SQL, run it, and print the rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bind(cmd, defaults)
			raw, err := c.do(cmd.Context(), http.MethodPost, "/api/chat", map[string]string{
				"message": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			if asJSON {
				writeRaw(cmd.OutOrStdout(), raw)
				return nil
			}

			var reply chatReply
			decoder := json.NewDecoder(bytes.NewReader(raw))
			decoder.UseNumber()
			if err := decoder.Decode(&reply); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			return renderReply(cmd.OutOrStdout(), reply)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func newExportCommand(defaults Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <sql>",
		Short: "Run a SQL statement through the safety filter and write the rows as CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bind(cmd, defaults)
			raw, err := c.do(cmd.Context(), http.MethodPost, "/api/chat/export", map[string]string{
				"sql": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}

func newGetCommand(defaults Options, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := bind(cmd, defaults).do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			writeRaw(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

func renderReply(w io.Writer, reply chatReply) error {
	_, _ = fmt.Fprintf(w, "SQL: %s\n", reply.Query)
	_, _ = fmt.Fprintf(w, "%s (%d ms)\n", reply.Results.Message, reply.ExecutionTimeMs)
	if reply.ArchiveKey != "" {
		_, _ = fmt.Fprintf(w, "Archived as %s\n", reply.ArchiveKey)
	}
	if len(reply.Results.Data) == 0 {
		return nil
	}

	columns := reply.Results.Columns
	if len(columns) == 0 {
		columns = sortedKeys(reply.Results.Data[0])
	}
	data := pterm.TableData{columns}
	for _, row := range reply.Results.Data {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = cell(row[column])
		}
		data = append(data, record)
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, table)
	return nil
}

func cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(raw)
	}
}

func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
