package client

import (
	"context"
	"sync"

	domain "github.com/example/task-manager/domain/task"
)

type mutationKind int

const (
	mutationCreate mutationKind = iota
	mutationUpdate
	mutationDelete
)

// mutation is one optimistic change: apply edits a copy of the list and
// reports whether the target task was found, call performs it on the server.
type mutation struct {
	kind    mutationKind
	taskID  string
	apply   func([]domain.Task) ([]domain.Task, bool)
	call    func(ctx context.Context) (*domain.Task, error)
	success string
}

// baseline is what a rollback restores: the target task as it was before
// the mutation and where it sat in the list.
type baseline struct {
	prior *domain.Task
	index int
}

// Commit is the pending outcome of a mutation. It resolves exactly once,
// either confirmed with the server record or rolled back with an error.
// There is no timeout: a call that never returns leaves it pending and the
// tentative state in place.
type Commit struct {
	done chan struct{}
	once sync.Once
	task *domain.Task
	err  error
}

func newCommit() *Commit {
	return &Commit{done: make(chan struct{})}
}

func (c *Commit) resolve(t *domain.Task, err error) {
	c.once.Do(func() {
		if err == nil && t != nil {
			cp := t.Clone()
			c.task = &cp
		}
		c.err = err
		close(c.done)
	})
}

// Done is closed once the commit resolves.
func (c *Commit) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the commit resolves and returns its error.
func (c *Commit) Wait() error {
	<-c.done
	return c.err
}

// WaitContext is Wait bounded by ctx. It does not cancel the server call.
func (c *Commit) WaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the rollback reason, or nil while pending or when confirmed.
func (c *Commit) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Task returns the server record of a confirmed create, update or status
// change.
func (c *Commit) Task() (domain.Task, bool) {
	select {
	case <-c.done:
		if c.task != nil {
			return c.task.Clone(), true
		}
	default:
	}
	return domain.Task{}, false
}

// begin records the rollback baseline, applies the tentative change and
// starts the server call. Mutations on a task the cache does not hold fail
// with domain.ErrNotFound without a server call.
func (c *Cache) begin(ctx context.Context, m mutation) *Commit {
	c.mu.Lock()
	base := baseline{index: indexOf(c.tasks, m.taskID)}
	if base.index >= 0 {
		prior := c.tasks[base.index].Clone()
		base.prior = &prior
	}

	next, ok := m.apply(cloneTasks(c.tasks))
	if !ok {
		c.mu.Unlock()
		return c.reject(domain.ErrNotFound)
	}
	c.tasks = next
	c.mu.Unlock()
	c.publish()

	commit := newCommit()
	go func() {
		t, err := m.call(ctx)
		if err != nil {
			c.rollback(m, base, err)
			commit.resolve(nil, err)
			return
		}
		c.confirm(m, t)
		commit.resolve(t, nil)
	}()
	return commit
}

// confirm installs the server outcome. For concurrent mutations of the same
// task the last one to resolve wins.
func (c *Cache) confirm(m mutation, t *domain.Task) {
	c.mu.Lock()
	switch m.kind {
	case mutationCreate:
		placeholder := indexOf(c.tasks, m.taskID)
		switch {
		case indexOf(c.tasks, t.ID) >= 0:
			// A refresh already brought in the server record.
			if placeholder >= 0 {
				c.tasks = append(c.tasks[:placeholder], c.tasks[placeholder+1:]...)
			}
		case placeholder >= 0:
			c.tasks[placeholder] = t.Clone()
		default:
			c.tasks = append([]domain.Task{t.Clone()}, c.tasks...)
		}
	case mutationUpdate:
		if i := indexOf(c.tasks, m.taskID); i >= 0 {
			c.tasks[i] = t.Clone()
		}
	case mutationDelete:
		if i := indexOf(c.tasks, m.taskID); i >= 0 {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
		}
	}
	c.mu.Unlock()

	c.publish()
	c.notifier.Success(m.success)
}

// rollback undoes the mutation on its own task only, so concurrent
// mutations of other tasks are unaffected.
func (c *Cache) rollback(m mutation, base baseline, err error) {
	c.mu.Lock()
	switch m.kind {
	case mutationCreate:
		if i := indexOf(c.tasks, m.taskID); i >= 0 {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
		}
	case mutationUpdate:
		if i := indexOf(c.tasks, m.taskID); i >= 0 && base.prior != nil {
			c.tasks[i] = base.prior.Clone()
		}
	case mutationDelete:
		if indexOf(c.tasks, m.taskID) < 0 && base.prior != nil {
			at := min(base.index, len(c.tasks))
			c.tasks = append(c.tasks[:at], append([]domain.Task{base.prior.Clone()}, c.tasks[at:]...)...)
		}
	}
	c.mu.Unlock()

	c.publish()
	c.notifier.Error(failureMessage(err))
}
