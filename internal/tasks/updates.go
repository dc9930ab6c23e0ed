package tasks

import "fmt"

// ProgressUpdate represents a progress event during an acquisition.
type ProgressUpdate struct {
	TaskID  string // Task the update belongs to
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	Extract Phase = iota
	Copy
	ListRemote
	Download
	Finalize
)

func (p Phase) String() string {
	switch p {
	case Extract:
		return "extract"
	case Copy:
		return "copy"
	case ListRemote:
		return "list_remote"
	case Download:
		return "download"
	case Finalize:
		return "finalize"
	default:
		return "unknown"
	}
}

func (u ProgressUpdate) String() string {
	if u.Total > 0 {
		return fmt.Sprintf("[%s %d/%d] %s", u.Phase, u.Step, u.Total, u.Message)
	}
	return fmt.Sprintf("[%s %d] %s", u.Phase, u.Step, u.Message)
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
