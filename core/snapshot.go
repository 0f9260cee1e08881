package core

// Snapshot is the read model exposed to the rendering collaborator. It is a
// value copy and safe to retain.
type Snapshot struct {
	AttemptID   string                  `json:"attempt_id,omitempty"`
	TaskStatus  map[TaskKind]TaskStatus `json:"task_status"`
	Ready       bool                    `json:"ready"`
	SessionID   string                  `json:"session_id,omitempty"`
	SessionKey  SessionKey              `json:"session_key"`
	Mode        TransportMode           `json:"mode"`
	VisibleText string                  `json:"visible_text"`
	Terminal    Terminal                `json:"terminal"`
	LastError   error                   `json:"-"`
	Settled     bool                    `json:"settled"`
}

// NewSnapshot returns a snapshot with every task Idle.
func NewSnapshot() Snapshot {
	statuses := make(map[TaskKind]TaskStatus, len(TaskKinds))
	for _, k := range TaskKinds {
		statuses[k] = TaskIdle
	}
	return Snapshot{TaskStatus: statuses}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.TaskStatus = make(map[TaskKind]TaskStatus, len(s.TaskStatus))
	for k, v := range s.TaskStatus {
		c.TaskStatus[k] = v
	}
	return c
}
