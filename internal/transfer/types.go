// file: internal/transfer/types.go
// version: 1.0.0
// guid: 356dcd03-cbb5-45ff-9cdd-e419369ffe7c

package transfer

import (
	"time"

	"github.com/jdfalk/filesync/internal/realtime"
)

// State is where a task sits in the scheduler.
type State string

const (
	StateCurrent   State = "current"
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// TaskInfo is a read-only view of a scheduled task. ID is assigned at
// admission and only used to correlate events; progress lookups go through
// (RepoID, Path).
type TaskInfo struct {
	ID          string `json:"id"`
	RepoID      string `json:"repo_id"`
	Path        string `json:"path"`
	LocalPath   string `json:"local_path,omitempty"`
	State       State  `json:"state"`
	Progress    string `json:"progress"`
	Transferred int64  `json:"transferred,omitempty"`
	Total       int64  `json:"total,omitempty"`
}

// Snapshot is a consistent copy of the running task and the backlog in
// admission order.
type Snapshot struct {
	Current *TaskInfo  `json:"current"`
	Pending []TaskInfo `json:"pending"`
}

// EventKind names a scheduler transition.
type EventKind string

const (
	EventQueued   EventKind = "queued"
	EventStarted  EventKind = "started"
	EventProgress EventKind = "progress"
	EventFinished EventKind = "finished"
)

// Event describes a scheduler transition. Success and Elapsed are only set
// for EventFinished.
type Event struct {
	Kind    EventKind
	Task    TaskInfo
	Success bool
	Elapsed time.Duration
}

// Listener observes scheduler transitions.
type Listener func(Event)

// HubListener forwards scheduler events to SSE clients.
func HubListener(hub *realtime.EventHub) Listener {
	return func(ev Event) {
		switch ev.Kind {
		case EventQueued:
			hub.SendTransferStatus(realtime.EventTransferQueued, ev.Task.ID, ev.Task.RepoID, ev.Task.Path, nil)
		case EventStarted:
			hub.SendTransferStatus(realtime.EventTransferStarted, ev.Task.ID, ev.Task.RepoID, ev.Task.Path, nil)
		case EventProgress:
			hub.SendTransferProgress(ev.Task.ID, ev.Task.RepoID, ev.Task.Path, ev.Task.Transferred, ev.Task.Total)
		case EventFinished:
			hub.SendTransferStatus(realtime.EventTransferFinished, ev.Task.ID, ev.Task.RepoID, ev.Task.Path,
				map[string]interface{}{
					"success":    ev.Success,
					"elapsed_ms": ev.Elapsed.Milliseconds(),
				})
		}
	}
}
