// package formatter exports dataset metadata and subject tables to CSV, Markdown, JSON and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// Format is an export format for subject tables.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names and the common extensions (md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ExportToCSV writes the table header followed by one record per row.
func ExportToCSV(table bids.Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the table as a GitHub-flavored Markdown table under a title heading.
func ExportToMarkdown(title string, table bids.Table) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", title)
	}
	fmt.Fprintf(&buf, "**Subjects**: %d\n\n", len(table.Rows))

	if len(table.Columns) == 0 {
		return buf.Bytes(), nil
	}

	writeMarkdownRow(&buf, table.Columns)
	sep := make([]string, len(table.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeMarkdownRow(&buf, sep)

	for _, row := range table.Rows {
		writeMarkdownRow(&buf, row)
	}

	return buf.Bytes(), nil
}

func writeMarkdownRow(buf *bytes.Buffer, cells []string) {
	buf.WriteString("|")
	for _, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		c = strings.ReplaceAll(c, "\n", " ")
		buf.WriteString(" " + c + " |")
	}
	buf.WriteString("\n")
}

// ExportToJSON writes the rows as an array of column to value objects.
func ExportToJSON(table bids.Table) ([]byte, error) {
	records := make([]map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		rec := make(map[string]string, len(table.Columns))
		for j, col := range table.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		records[i] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Export dispatches on format.
func Export(format Format, title string, table bids.Table) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(table)
	case FormatMarkdown:
		return ExportToMarkdown(title, table)
	case FormatJSON:
		return ExportToJSON(table)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportToText lists metadata fields as aligned "key: value" lines under a title.
func ExportToText(title string, fields []bids.Field) []byte {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "%s\n%s\n", title, strings.Repeat("=", len(title)))
	}

	width := 0
	for _, f := range fields {
		width = max(width, len(f.Key))
	}
	for _, f := range fields {
		fmt.Fprintf(&buf, "%-*s  %s\n", width+1, f.Key+":", f.Value)
	}

	return buf.Bytes()
}

// WriteExport exports table to path, which defaults to {base}_subjects.{ext}.
func WriteExport(format Format, title string, table bids.Table, path, base string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_subjects.%s", base, format.Extension())
	}

	data, err := Export(format, title, table)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}
