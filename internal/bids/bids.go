// Package bids reads the metadata of a BIDS dataset folder.
//
// Only metadata is loaded: dataset_description.json, participants.tsv and
// participants.json, plus the sub-*/ses-* directory layout. Imaging files are
// counted but never opened.
package bids

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/bidshelf/internal/shared"
)

const (
	descriptionFile  = "dataset_description.json"
	participantsFile = "participants.tsv"
	fieldsFile       = "participants.json"
	participantIDCol = "participant_id"
	subjectPrefix    = "sub-"
	sessionPrefix    = "ses-"
)

// Field is one metadata entry. Values are rendered to strings.
type Field struct {
	Key   string
	Value string
}

// FieldDescription documents a participants.tsv column (from participants.json).
type FieldDescription struct {
	Description string            `json:"Description"`
	Units       string            `json:"Units,omitempty"`
	Levels      map[string]string `json:"Levels,omitempty"`
}

// Dataset is the parsed metadata of a dataset folder.
type Dataset struct {
	Folder      string
	Description map[string]any
	Fields      map[string]FieldDescription
	Subjects    []*Subject
}

// Subject is one participant, merged from participants.tsv and its sub-* directory.
type Subject struct {
	ID         string
	Folder     string // empty when the subject only appears in participants.tsv
	Sessions   []string
	Modalities []string
	Files      int
	columns    []Field
}

// Table is a rectangular view of subject metadata.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Name returns the dataset name from the description, falling back to the folder name.
func (d *Dataset) Name() string {
	if name, ok := d.Description["Name"].(string); ok && name != "" {
		return name
	}
	return filepath.Base(d.Folder)
}

// AllMetaData returns the description entries in key order followed by derived values.
func (d *Dataset) AllMetaData() []Field {
	keys := make([]string, 0, len(d.Description))
	for k := range d.Description {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys)+3)
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: formatValue(d.Description[k])})
	}

	sessions := 0
	for _, s := range d.Subjects {
		sessions += len(s.Sessions)
	}

	return append(fields,
		Field{Key: "n_subjects", Value: strconv.Itoa(len(d.Subjects))},
		Field{Key: "n_sessions", Value: strconv.Itoa(sessions)},
		Field{Key: "folder", Value: d.Folder},
	)
}

// AllMetaData returns participant_id, the participants.tsv columns in file order, then derived values.
func (s *Subject) AllMetaData() []Field {
	fields := []Field{{Key: participantIDCol, Value: s.ID}}
	fields = append(fields, s.columns...)
	return append(fields,
		Field{Key: "n_sessions", Value: strconv.Itoa(len(s.Sessions))},
		Field{Key: "modalities", Value: strings.Join(s.Modalities, ",")},
		Field{Key: "n_files", Value: strconv.Itoa(s.Files)},
	)
}

// SubjectTable lays subjects out as rows. Columns are the union of every subject's keys in first-seen order.
func (d *Dataset) SubjectTable() Table {
	var columns []string
	index := map[string]int{}
	rows := make([]map[string]string, 0, len(d.Subjects))

	for _, s := range d.Subjects {
		row := map[string]string{}
		for _, f := range s.AllMetaData() {
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(columns)
				columns = append(columns, f.Key)
			}
			row[f.Key] = f.Value
		}
		rows = append(rows, row)
	}

	table := Table{Columns: columns, Rows: make([][]string, len(rows))}
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			cells[j] = row[c]
		}
		table.Rows[i] = cells
	}
	return table
}

// Load parses folder. Every failure wraps [shared.ErrParse].
func Load(folder string) (*Dataset, error) {
	if folder == "" {
		return nil, fmt.Errorf("%w: dataset has no folder", shared.ErrParse)
	}

	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrParse, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", shared.ErrParse, folder)
	}

	d := &Dataset{Folder: folder, Description: map[string]any{}, Fields: map[string]FieldDescription{}}

	if err := readJSON(filepath.Join(folder, descriptionFile), &d.Description); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(folder, fieldsFile), &d.Fields); err != nil {
		return nil, err
	}

	participants, err := readParticipants(filepath.Join(folder, participantsFile))
	if err != nil {
		return nil, err
	}

	subjects, err := scanSubjects(folder)
	if err != nil {
		return nil, err
	}

	for id, cols := range participants {
		s, ok := subjects[id]
		if !ok {
			s = &Subject{ID: id}
			subjects[id] = s
		}
		s.columns = cols
	}

	d.Subjects = make([]*Subject, 0, len(subjects))
	for _, s := range subjects {
		d.Subjects = append(d.Subjects, s)
	}
	sort.Slice(d.Subjects, func(i, j int) bool { return d.Subjects[i].ID < d.Subjects[j].ID })

	return d, nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrParse, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrParse, filepath.Base(path), err)
	}
	return nil
}

// readParticipants maps participant_id to the remaining columns of participants.tsv.
func readParticipants(path string) (map[string][]Field, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrParse, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrParse, participantsFile, err)
	}

	idCol := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if header[i] == participantIDCol {
			idCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w: %s has no %s column", shared.ErrParse, participantsFile, participantIDCol)
	}

	out := map[string][]Field{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrParse, participantsFile, err)
		}

		id := normalizeSubject(record[idCol])
		if id == "" {
			continue
		}

		cols := make([]Field, 0, len(header)-1)
		for i, h := range header {
			if i == idCol {
				continue
			}
			cols = append(cols, Field{Key: h, Value: strings.TrimSpace(record[i])})
		}
		out[id] = cols
	}
	return out, nil
}

func normalizeSubject(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, subjectPrefix) {
		return id
	}
	return subjectPrefix + id
}

// scanSubjects finds sub-* directories with their sessions, modality folders and file counts.
func scanSubjects(folder string) (map[string]*Subject, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrParse, err)
	}

	subjects := map[string]*Subject{}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), subjectPrefix) {
			continue
		}

		s := &Subject{ID: e.Name(), Folder: filepath.Join(folder, e.Name())}
		modalities := map[string]bool{}

		err := filepath.WalkDir(s.Folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == s.Folder {
				return nil
			}

			rel, _ := filepath.Rel(s.Folder, path)
			parts := strings.Split(rel, string(filepath.Separator))

			if d.IsDir() {
				switch {
				case len(parts) == 1 && strings.HasPrefix(parts[0], sessionPrefix):
					s.Sessions = append(s.Sessions, parts[0])
				case len(parts) == 1:
					modalities[parts[0]] = true
				case len(parts) == 2 && strings.HasPrefix(parts[0], sessionPrefix):
					modalities[parts[1]] = true
				}
				return nil
			}

			if !strings.HasPrefix(d.Name(), ".") {
				s.Files++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrParse, e.Name(), err)
		}

		for m := range modalities {
			s.Modalities = append(s.Modalities, m)
		}
		sort.Strings(s.Modalities)
		sort.Strings(s.Sessions)
		subjects[s.ID] = s
	}
	return subjects, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = formatValue(p)
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
