package board

import "taskflow-api/domain"

// insertPos computes the absolute position in the task sequence at which a
// task of the given status must be inserted so that it becomes the index-th
// task of that status. Other tasks keep their relative order.
//
// The sequence is scanned left to right counting only tasks whose status
// matches; when the count reaches index the position of that element is
// returned. An index at or past the end of the column appends to the whole
// sequence. A negative index means "front of the board", which is also the
// front of the task's column.
func insertPos(tasks []domain.Task, status domain.Status, index int) int {
	if index < 0 {
		return 0
	}
	seen := 0
	for p, t := range tasks {
		if t.Status != status {
			continue
		}
		if seen == index {
			return p
		}
		seen++
	}
	return len(tasks)
}

// insertTask places t into tasks at the position computed by insertPos and
// returns the new sequence. tasks is not modified.
func insertTask(tasks []domain.Task, t domain.Task, index int) []domain.Task {
	pos := insertPos(tasks, t.Status, index)
	out := make([]domain.Task, 0, len(tasks)+1)
	out = append(out, tasks[:pos]...)
	out = append(out, t)
	out = append(out, tasks[pos:]...)
	return out
}
