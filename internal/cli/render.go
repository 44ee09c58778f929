package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/godoes/dynamodel"
)

func renderRecords(w io.Writer, columns []string, records []*dynamodel.Record, format string) error {
	switch format {
	case "json":
		return renderJSON(w, records)
	default:
		return renderTable(w, columns, records)
	}
}

func renderTable(w io.Writer, columns []string, records []*dynamodel.Record) error {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	if len(columns) == 0 {
		columns = records[0].Columns()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	// column names keep the case the database reported
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, rec := range records {
		row := make(table.Row, len(columns))
		for i, col := range columns {
			row[i] = formatValue(rec.Value(col))
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(records))
	return nil
}

func renderJSON(w io.Writer, records []*dynamodel.Record) error {
	if records == nil {
		records = []*dynamodel.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
