package domain

// Status identifies the board column a task belongs to.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// StatusOrder lists the board columns in display order.
var StatusOrder = []Status{StatusBacklog, StatusInProgress, StatusDone}

// Valid reports whether s is one of the known board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task represents a single board item.
//
// DueDate is a calendar date in YYYY-MM-DD form; CreatedAt and UpdatedAt are
// RFC 3339 timestamps. Labels holds label ids in display order.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	DueDate     string   `json:"dueDate,omitempty"`
	Labels      []string `json:"labels"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Clone returns a copy of the task that shares no slices with the original.
func (t Task) Clone() Task {
	out := t
	out.Labels = append([]string(nil), t.Labels...)
	return out
}

// TaskDraft carries the caller-supplied fields of a new task.
type TaskDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	DueDate     string   `json:"dueDate,omitempty"`
	Labels      []string `json:"labels"`
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
}

// TaskLabel is one task-to-label association row.
type TaskLabel struct {
	TaskID  string `json:"task_id"`
	LabelID string `json:"label_id"`
}

// BoardState is the full board: one task sequence plus the label list.
//
// The task sequence encodes per-column ordering by relative position: a
// task's place in its column is its position among same-status tasks.
type BoardState struct {
	Tasks  []Task  `json:"tasks"`
	Labels []Label `json:"labels"`
}

// Clone deep-copies the board state.
func (s BoardState) Clone() BoardState {
	out := BoardState{
		Tasks:  make([]Task, len(s.Tasks)),
		Labels: append([]Label(nil), s.Labels...),
	}
	for i, t := range s.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}
