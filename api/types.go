package api

import (
	"time"

	"taskflow-api/domain"
)

// Board is the task store surface the handlers consume.
type Board interface {
	State() domain.BoardState
	Filters() domain.Filters
	Visible(now time.Time) []domain.Task

	AddTask(d domain.TaskDraft) domain.Task
	UpdateTask(id string, patch domain.TaskPatch) bool
	DeleteTask(id string) bool
	RestoreTask(t domain.Task, index int)
	MoveTask(id string, status domain.Status, index int) bool

	AddLabel(name string, color domain.LabelColor) domain.Label
	UpdateLabel(id string, patch domain.LabelPatch) bool
	DeleteLabel(id string) bool

	SetFilters(patch domain.FilterPatch)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
