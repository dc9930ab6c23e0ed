// package testing contains shared testing utilities
package testing

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// FakeOracle is a test double for tasks.StatusOracle.
//
// Unknown task ids return [shared.ErrNotFound]. Delay makes every query block until it elapses or ctx ends,
// and IgnoreContext makes it block for the full Delay regardless of ctx.
type FakeOracle struct {
	mu            sync.Mutex
	statuses      map[string]models.TaskStatus
	errs          map[string]error
	calls         atomic.Int64
	Delay         time.Duration
	IgnoreContext bool
}

func NewFakeOracle() *FakeOracle {
	return &FakeOracle{statuses: make(map[string]models.TaskStatus), errs: make(map[string]error)}
}

// Set makes taskID report status.
func (o *FakeOracle) Set(taskID string, status models.TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[taskID] = status
}

// Fail makes taskID report err.
func (o *FakeOracle) Fail(taskID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[taskID] = err
}

// Calls returns how many status queries were made.
func (o *FakeOracle) Calls() int { return int(o.calls.Load()) }

func (o *FakeOracle) Status(ctx context.Context, taskID string) (models.TaskStatus, error) {
	o.calls.Add(1)

	if o.Delay > 0 {
		if o.IgnoreContext {
			time.Sleep(o.Delay)
		} else {
			select {
			case <-time.After(o.Delay):
			case <-ctx.Done():
				return models.TaskStatus{}, ctx.Err()
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.errs[taskID]; ok {
		return models.TaskStatus{}, err
	}
	status, ok := o.statuses[taskID]
	if !ok {
		return models.TaskStatus{}, fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}
	return status, nil
}

// MemoryDatasets is an in-memory tasks.DatasetStore that applies the same guard as the SQL store:
// terminal states never go back to non-terminal and folder only fills an empty value.
type MemoryDatasets struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
	updates  atomic.Int64
	Err      error
}

func NewMemoryDatasets(datasets ...*models.Dataset) *MemoryDatasets {
	m := &MemoryDatasets{datasets: make(map[string]*models.Dataset)}
	for _, d := range datasets {
		m.datasets[d.ID()] = d.Clone()
	}
	return m
}

// Updates returns how many UpdateState calls were made.
func (m *MemoryDatasets) Updates() int { return int(m.updates.Load()) }

// Get returns a copy of the stored dataset, or nil.
func (m *MemoryDatasets) Get(id string) *models.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.datasets[id]; ok {
		return d.Clone()
	}
	return nil
}

func (m *MemoryDatasets) UpdateState(ctx context.Context, id string, state models.State, folder string) (*models.Dataset, error) {
	m.updates.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", shared.ErrNotFound, id)
	}
	if state.IsTerminal() || !d.State().IsTerminal() {
		d.SetState(state)
	}
	if folder != "" && d.Folder() == "" {
		d.SetFolder(folder)
	}
	return d.Clone(), nil
}

// MemoryTasks is an in-memory tasks.TaskStore.
type MemoryTasks struct {
	mu        sync.Mutex
	records   map[string]*models.TaskRecord
	CreateErr error
}

func NewMemoryTasks() *MemoryTasks {
	return &MemoryTasks{records: make(map[string]*models.TaskRecord)}
}

func (m *MemoryTasks) Create(ctx context.Context, job models.Job) (*models.TaskRecord, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	payload, err := job.Encode()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec := &models.TaskRecord{
		ID:        job.TaskID,
		Kind:      job.Kind,
		State:     models.StatePending,
		Payload:   string(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[job.TaskID] = rec
	c := *rec
	return &c, nil
}

// Record returns a copy of the task record, or nil.
func (m *MemoryTasks) Record(id string) *models.TaskRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		c := *rec
		return &c
	}
	return nil
}

func (m *MemoryTasks) Status(ctx context.Context, taskID string) (models.TaskStatus, error) {
	rec := m.Record(taskID)
	if rec == nil {
		return models.TaskStatus{}, fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}
	return rec.Status(), nil
}

func (m *MemoryTasks) MarkStarted(ctx context.Context, id string) error {
	return m.transition(id, func(rec *models.TaskRecord) {
		rec.State = models.StateStarted
	})
}

func (m *MemoryTasks) Complete(ctx context.Context, id, folder string) error {
	return m.transition(id, func(rec *models.TaskRecord) {
		rec.State = models.StateSuccess
		rec.ResultFolder = folder
	})
}

func (m *MemoryTasks) Fail(ctx context.Context, id, message string) error {
	return m.transition(id, func(rec *models.TaskRecord) {
		rec.State = models.StateFailure
		rec.Message = message
	})
}

func (m *MemoryTasks) ListIncomplete(ctx context.Context) ([]models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []models.TaskRecord
	for _, rec := range m.records {
		if !rec.State.IsTerminal() {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

func (m *MemoryTasks) transition(id string, apply func(*models.TaskRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	if rec.State.IsTerminal() {
		return nil
	}
	apply(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordingTransport collects enqueued jobs, failing with Err when set.
type RecordingTransport struct {
	mu   sync.Mutex
	jobs []models.Job
	Err  error
}

func (r *RecordingTransport) Enqueue(ctx context.Context, job models.Job) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *RecordingTransport) Jobs() []models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Job(nil), r.jobs...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// WriteTree creates files (relative path to content) under root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

// WriteZip writes a zip archive holding files to path.
func WriteZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
}

// WriteTarGz writes a gzip compressed tar archive holding files to path.
func WriteTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, name := range sortedKeys(files) {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(files[name])), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
		if _, err := io.WriteString(tw, files[name]); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
}

func sortedKeys(files map[string]string) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
