package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/shared"
	th "github.com/desertthunder/bidshelf/internal/testing"
)

func subjects() bids.Table {
	return bids.Table{
		Columns: []string{"participant_id", "age", "group", "n_sessions"},
		Rows: [][]string{
			{"sub-01", "24", "control", "1"},
			{"sub-02", "31", "patient|acute", "2"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatCSV},
		{in: "csv", want: FormatCSV},
		{in: "Markdown", want: FormatMarkdown},
		{in: "md", want: FormatMarkdown},
		{in: " json ", want: FormatJSON},
		{in: "xlsx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(subjects())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		want := "participant_id,age,group,n_sessions\nsub-01,24,control,1\nsub-02,31,patient|acute,2\n"
		if string(data) != want {
			t.Errorf("unexpected CSV:\n%s", data)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown("Balloon Task", subjects())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "# Balloon Task") {
			t.Errorf("Markdown missing title")
		}
		if !strings.Contains(output, "**Subjects**: 2") {
			t.Errorf("Markdown missing subject count")
		}
		if !strings.Contains(output, "| participant_id | age | group | n_sessions |\n| --- | --- | --- | --- |") {
			t.Errorf("Markdown missing header, got: %s", output)
		}
		if !strings.Contains(output, `| sub-02 | 31 | patient\|acute | 2 |`) {
			t.Errorf("Markdown did not escape pipes, got: %s", output)
		}

		t.Run("without columns", func(t *testing.T) {
			data, err := ExportToMarkdown("", bids.Table{})
			if err != nil {
				t.Fatalf("ExportToMarkdown failed: %v", err)
			}
			if string(data) != "**Subjects**: 0\n\n" {
				t.Errorf("unexpected output %q", data)
			}
		})
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(subjects())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var records []map[string]string
		if err := json.Unmarshal(data, &records); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[1]["participant_id"] != "sub-02" || records[1]["group"] != "patient|acute" {
			t.Errorf("unexpected record %v", records[1])
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		output := string(ExportToText("Balloon Task", []bids.Field{
			{Key: "BIDSVersion", Value: "1.8.0"},
			{Key: "n_subjects", Value: "2"},
		}))

		if !strings.HasPrefix(output, "Balloon Task\n============\n") {
			t.Errorf("Text missing underlined title, got: %s", output)
		}
		if !strings.Contains(output, "BIDSVersion:  1.8.0\n") {
			t.Errorf("Text missing aligned field, got: %q", output)
		}
		if !strings.Contains(output, "n_subjects:   2\n") {
			t.Errorf("Text missing aligned field, got: %q", output)
		}
	})

	t.Run("Export rejects unknown formats", func(t *testing.T) {
		if _, err := Export(Format("xml"), "", subjects()); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("WithDefaultPath", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "ds001")

		path, err := WriteExport(FormatMarkdown, "Balloon Task", subjects(), "", base)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}

		if path != base+"_subjects.md" {
			t.Errorf("Expected %s_subjects.md, got %s", base, path)
		}
		th.AssertFileExists(t, path)
		if !strings.Contains(th.MustReadFile(t, path), "# Balloon Task") {
			t.Errorf("Markdown file missing title")
		}
	})

	t.Run("WithCustomPath", func(t *testing.T) {
		custom := filepath.Join(t.TempDir(), "out.csv")

		path, err := WriteExport(FormatCSV, "", subjects(), custom, "ignored")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}

		if path != custom {
			t.Errorf("Expected %s, got %s", custom, path)
		}
		if !strings.HasPrefix(th.MustReadFile(t, path), "participant_id,age") {
			t.Errorf("CSV file missing header")
		}
	})

	t.Run("UnwritableDirectory", func(t *testing.T) {
		_, err := WriteExport(FormatJSON, "", subjects(), filepath.Join(t.TempDir(), "missing", "out.json"), "")
		if err == nil {
			t.Error("expected an error for a missing directory")
		}
	})
}
