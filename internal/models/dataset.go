package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dataset is a registered dataset and the state of its acquisition.
//
// databaseID and version are fixed at creation. folder may be filled in later,
// once the acquisition task reports where the content landed.
type Dataset struct {
	id         string
	sequence   int
	name       string
	folder     string
	databaseID string
	version    string
	icon       string
	taskID     string
	state      State
	createdAt  time.Time
	updatedAt  time.Time
}

// DatasetParams holds the user supplied fields of a new [Dataset].
type DatasetParams struct {
	Name       string
	Folder     string
	DatabaseID string
	Version    string
	Icon       string
}

// NewDataset builds an unsaved dataset. Without a task it starts as SUCCESS.
func NewDataset(p DatasetParams) *Dataset {
	now := time.Now().UTC()
	return &Dataset{
		name:       strings.TrimSpace(p.Name),
		folder:     p.Folder,
		databaseID: strings.TrimSpace(p.DatabaseID),
		version:    strings.TrimSpace(p.Version),
		icon:       p.Icon,
		state:      StateSuccess,
		createdAt:  now,
		updatedAt:  now,
	}
}

// RestoreDataset rebuilds a dataset from persisted values.
func RestoreDataset(id string, sequence int, p DatasetParams, taskID string, state State, createdAt, updatedAt time.Time) *Dataset {
	return &Dataset{
		id:         id,
		sequence:   sequence,
		name:       p.Name,
		folder:     p.Folder,
		databaseID: p.DatabaseID,
		version:    p.Version,
		icon:       p.Icon,
		taskID:     taskID,
		state:      state,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

func (d *Dataset) ID() string           { return d.id }
func (d *Dataset) Sequence() int        { return d.sequence }
func (d *Dataset) Name() string         { return d.name }
func (d *Dataset) Folder() string       { return d.folder }
func (d *Dataset) DatabaseID() string   { return d.databaseID }
func (d *Dataset) Version() string      { return d.version }
func (d *Dataset) Icon() string         { return d.icon }
func (d *Dataset) TaskID() string       { return d.taskID }
func (d *Dataset) State() State         { return d.state }
func (d *Dataset) CreatedAt() time.Time { return d.createdAt }
func (d *Dataset) UpdatedAt() time.Time { return d.updatedAt }

// HasTask reports whether an acquisition job was submitted for this dataset.
func (d *Dataset) HasTask() bool { return d.taskID != "" }

// IsRemote reports whether the dataset references an external database entry.
func (d *Dataset) IsRemote() bool { return d.databaseID != "" }

func (d *Dataset) SetID(id string)          { d.id = id }
func (d *Dataset) SetSequence(seq int)      { d.sequence = seq }
func (d *Dataset) SetFolder(folder string)  { d.folder = folder }
func (d *Dataset) SetIcon(icon string)      { d.icon = icon }
func (d *Dataset) SetState(state State)     { d.state = state }
func (d *Dataset) SetUpdatedAt(t time.Time) { d.updatedAt = t }

// AttachTask records the acquisition job and resets the state to PENDING.
func (d *Dataset) AttachTask(taskID string) {
	d.taskID = taskID
	d.state = StatePending
}

// Validate checks required fields and the state enumeration.
func (d *Dataset) Validate() error {
	if d.name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if !d.state.Valid() {
		return fmt.Errorf("invalid dataset state %q", d.state)
	}
	if d.version != "" && d.databaseID == "" {
		return fmt.Errorf("dataset version requires a database id")
	}
	return nil
}

// Clone returns a copy that can be mutated without affecting d.
func (d *Dataset) Clone() *Dataset {
	c := *d
	return &c
}

type datasetJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Folder     string    `json:"folder,omitempty"`
	DatabaseID string    `json:"database_id,omitempty"`
	Version    string    `json:"version,omitempty"`
	Icon       string    `json:"icon,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MarshalJSON renders the dataset for CLI and API output.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(datasetJSON{
		ID:         d.id,
		Name:       d.name,
		Folder:     d.folder,
		DatabaseID: d.databaseID,
		Version:    d.version,
		Icon:       d.icon,
		TaskID:     d.taskID,
		State:      d.state,
		CreatedAt:  d.createdAt,
		UpdatedAt:  d.updatedAt,
	})
}
