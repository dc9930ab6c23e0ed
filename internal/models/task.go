package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind names the acquisition a background job performs.
type JobKind string

const (
	JobUnpackArchive     JobKind = "unpack_archive"
	JobCopyFolder        JobKind = "copy_folder"
	JobOpenNeuroDownload JobKind = "openneuro_download"
)

// Job describes one acquisition. It is the message body sent to the worker.
type Job struct {
	TaskID      string  `json:"task_id"`
	Kind        JobKind `json:"kind"`
	DatasetID   string  `json:"dataset_id,omitempty"`
	Archive     string  `json:"archive,omitempty"`
	Source      string  `json:"source,omitempty"`
	DatabaseID  string  `json:"database_id,omitempty"`
	Version     string  `json:"version,omitempty"`
	Destination string  `json:"destination"`
}

// Validate checks that the fields required by the job kind are present.
func (j Job) Validate() error {
	if j.Destination == "" {
		return fmt.Errorf("job %s: destination is required", j.Kind)
	}

	switch j.Kind {
	case JobUnpackArchive:
		if j.Archive == "" {
			return fmt.Errorf("job %s: archive is required", j.Kind)
		}
	case JobCopyFolder:
		if j.Source == "" {
			return fmt.Errorf("job %s: source is required", j.Kind)
		}
	case JobOpenNeuroDownload:
		if j.DatabaseID == "" {
			return fmt.Errorf("job %s: database id is required", j.Kind)
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

// Encode serializes the job as JSON.
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses and validates a JSON job.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// TaskStatus is what the worker reports for a task id.
type TaskStatus struct {
	State   State
	Folder  string // where the acquired content landed, set on SUCCESS
	Message string // failure detail, set on FAILURE
}

// TaskRecord is the persisted status row of a job.
type TaskRecord struct {
	ID           string     `db:"id"`
	Kind         JobKind    `db:"kind"`
	State        State      `db:"state"`
	Payload      string     `db:"payload"`
	ResultFolder string     `db:"result_folder"`
	Message      string     `db:"message"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

// Status projects the record onto what status queries return.
func (t *TaskRecord) Status() TaskStatus {
	return TaskStatus{State: t.State, Folder: t.ResultFolder, Message: t.Message}
}

// Job decodes the stored payload.
func (t *TaskRecord) Job() (Job, error) {
	return DecodeJob([]byte(t.Payload))
}

// Validate checks the record before it is written.
func (t *TaskRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if !t.State.Valid() {
		return fmt.Errorf("invalid task state %q", t.State)
	}
	return nil
}
