package client

import (
	"context"

	domain "github.com/example/task-manager/domain/task"
)

// Filter returns the cached tasks passing f, in list order. It never calls
// the server.
func (c *Cache) Filter(f domain.Filter) []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if f.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Column is one status lane of the board.
type Column struct {
	Status domain.Status
	Tasks  []domain.Task
}

// Board groups the cached tasks into one column per status, in
// domain.Statuses order, keeping list order within each column.
func (c *Cache) Board() []Column {
	columns := make([]Column, len(domain.Statuses))
	for i, st := range domain.Statuses {
		columns[i] = Column{Status: st, Tasks: c.Filter(domain.FilterFor(st))}
	}
	return columns
}

// Location is a drop position on the board.
type Location struct {
	Status domain.Status
	Index  int
}

// DragEnd handles a drop of taskID from src onto dst. Dropping outside the
// board (nil dst) or back onto the same spot does nothing. Dropping onto
// another column changes the task's status; dropping elsewhere in the same
// column only reorders the local list. A nil Commit means no server call
// was made.
func (c *Cache) DragEnd(ctx context.Context, taskID string, src Location, dst *Location) *Commit {
	if dst == nil {
		return nil
	}
	if dst.Status == src.Status && dst.Index == src.Index {
		return nil
	}
	if dst.Status != src.Status {
		return c.SetStatus(ctx, taskID, dst.Status)
	}

	c.reorder(taskID, dst.Status, dst.Index)
	return nil
}

// reorder moves taskID to position index among the tasks of its column.
func (c *Cache) reorder(taskID string, status domain.Status, index int) {
	c.mu.Lock()
	from := indexOf(c.tasks, taskID)
	if from < 0 || c.tasks[from].Status != status {
		c.mu.Unlock()
		return
	}

	moved := c.tasks[from]
	rest := append(c.tasks[:from:from], c.tasks[from+1:]...)

	// Insert before the column's index-th remaining task, or after its last.
	at, seen, last := -1, 0, -1
	for i, t := range rest {
		if t.Status != status {
			continue
		}
		if seen == index {
			at = i
			break
		}
		seen++
		last = i
	}
	if at < 0 {
		at = last + 1
		if last < 0 {
			at = min(from, len(rest))
		}
	}

	c.tasks = append(rest[:at:at], append([]domain.Task{moved}, rest[at:]...)...)
	c.mu.Unlock()
	c.publish()
}
