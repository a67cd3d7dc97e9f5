package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"github.com/nats-io/nats.go"
)

func newTask(owner, title string, status domain.Status, created time.Time) domain.Task {
	return domain.Task{
		OwnerID:   owner,
		Title:     title,
		Status:    status,
		Priority:  domain.PriorityMedium,
		Labels:    []string{"work"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// runStoreSuite exercises the behaviour every backend shares. s must be
// unconnected and empty.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("operations before connect fail as unavailable", func(t *testing.T) {
		_, err := s.FindByOwner(ctx, "alice", domain.FilterAll)
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("FindByOwner() error = %v, want ErrStoreUnavailable", err)
		}
		if err := s.Ping(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("Ping() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("connect is idempotent and concurrency safe", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Connect(ctx)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
		}
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("second Connect() error = %v", err)
		}
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
	})

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var first, second, third domain.Task

	t.Run("insert assigns identity", func(t *testing.T) {
		in := newTask("alice", "first", domain.StatusTodo, base)
		in.DueDate = &due
		var err error
		first, err = s.Insert(ctx, in)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if first.ID == "" {
			t.Fatal("Insert() did not assign an ID")
		}

		second, err = s.Insert(ctx, newTask("alice", "second", domain.StatusCompleted, base.Add(time.Minute)))
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		third, err = s.Insert(ctx, newTask("bob", "third", domain.StatusTodo, base.Add(2*time.Minute)))
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		fresh, err := s.Insert(ctx, domain.Task{OwnerID: "carol", Title: "stamped", Status: domain.StatusTodo, Priority: domain.PriorityLow})
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if fresh.CreatedAt.IsZero() || !fresh.UpdatedAt.Equal(fresh.CreatedAt) {
			t.Errorf("timestamps = %v/%v, want set and equal", fresh.CreatedAt, fresh.UpdatedAt)
		}
		if fresh.Labels == nil {
			t.Error("Labels = nil, want empty slice")
		}
	})

	t.Run("find one round trips", func(t *testing.T) {
		got, err := s.FindOne(ctx, first.ID, "alice")
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		if got.Title != "first" || got.Status != domain.StatusTodo || got.Priority != domain.PriorityMedium {
			t.Errorf("FindOne() = %+v", got)
		}
		if got.DueDate == nil || !got.DueDate.Equal(due) {
			t.Errorf("DueDate = %v, want %v", got.DueDate, due)
		}
		if len(got.Labels) != 1 || got.Labels[0] != "work" {
			t.Errorf("Labels = %v, want [work]", got.Labels)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
	})

	t.Run("find one is owner scoped", func(t *testing.T) {
		if _, err := s.FindOne(ctx, first.ID, "bob"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FindOne(foreign owner) error = %v, want ErrNotFound", err)
		}
		if _, err := s.FindOne(ctx, "missing", "alice"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FindOne(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("find by owner orders newest first and filters", func(t *testing.T) {
		all, err := s.FindByOwner(ctx, "alice", domain.FilterAll)
		if err != nil {
			t.Fatalf("FindByOwner() error = %v", err)
		}
		if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
			t.Fatalf("FindByOwner() = %v, want [second first]", titles(all))
		}

		done, err := s.FindByOwner(ctx, "alice", domain.FilterFor(domain.StatusCompleted))
		if err != nil {
			t.Fatalf("FindByOwner() error = %v", err)
		}
		if len(done) != 1 || done[0].ID != second.ID {
			t.Errorf("FindByOwner(completed) = %v, want [second]", titles(done))
		}

		none, err := s.FindByOwner(ctx, "nobody", domain.FilterAll)
		if err != nil {
			t.Fatalf("FindByOwner() error = %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("FindByOwner(nobody) = %#v, want empty slice", none)
		}
	})

	t.Run("update fields is partial and advances updated at", func(t *testing.T) {
		st := domain.StatusInProgress
		got, err := s.UpdateFields(ctx, first.ID, "alice", domain.Fields{Status: &st})
		if err != nil {
			t.Fatalf("UpdateFields() error = %v", err)
		}
		if got.Status != domain.StatusInProgress || got.Title != "first" {
			t.Errorf("UpdateFields() = %+v", got)
		}
		if got.DueDate == nil || len(got.Labels) != 1 {
			t.Errorf("untouched fields changed: due=%v labels=%v", got.DueDate, got.Labels)
		}
		if !got.UpdatedAt.After(first.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, first.UpdatedAt)
		}
		if !got.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed to %v", got.CreatedAt)
		}

		reread, err := s.FindOne(ctx, first.ID, "alice")
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		if reread.Status != domain.StatusInProgress || !reread.UpdatedAt.Equal(got.UpdatedAt) {
			t.Errorf("persisted = %+v, want %+v", reread, got)
		}

		labels := []string{}
		cleared, err := s.UpdateFields(ctx, first.ID, "alice", domain.Fields{DueDateSet: true, Labels: &labels})
		if err != nil {
			t.Fatalf("UpdateFields() error = %v", err)
		}
		if cleared.DueDate != nil || len(cleared.Labels) != 0 {
			t.Errorf("UpdateFields(clear) = due %v labels %v", cleared.DueDate, cleared.Labels)
		}
	})

	t.Run("update fields is owner scoped", func(t *testing.T) {
		title := "stolen"
		_, err := s.UpdateFields(ctx, third.ID, "alice", domain.Fields{Title: &title})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("UpdateFields(foreign) error = %v, want ErrNotFound", err)
		}
		got, err := s.FindOne(ctx, third.ID, "bob")
		if err != nil || got.Title != "third" {
			t.Errorf("foreign task changed: %+v, %v", got, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if _, err := s.Delete(ctx, second.ID, "bob"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Delete(foreign) error = %v, want ErrNotFound", err)
		}
		deleted, err := s.Delete(ctx, second.ID, "alice")
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if deleted.ID != second.ID || deleted.Title != "second" || deleted.OwnerID != "alice" {
			t.Errorf("Delete() = %+v, want the removed record", deleted)
		}
		if _, err := s.FindOne(ctx, second.ID, "alice"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FindOne(deleted) error = %v, want ErrNotFound", err)
		}
		if _, err := s.Delete(ctx, second.ID, "alice"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent deletes succeed once", func(t *testing.T) {
		target, err := s.Insert(ctx, newTask("dave", "contested", domain.StatusTodo, base))
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		const workers = 8
		results := make(chan error, workers)
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Delete(ctx, target.ID, "dave")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, domain.ErrNotFound):
				t.Errorf("Delete() error = %v, want nil or ErrNotFound", err)
			}
		}
		if succeeded != 1 {
			t.Errorf("successful deletes = %d, want 1", succeeded)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second Close() error = %v", err)
		}
		if _, err := s.FindOne(ctx, first.ID, "alice"); !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Errorf("FindOne() after Close error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func titles(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestGormStore(t *testing.T) {
	runStoreSuite(t, NewGormStore(":memory:", false))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping test: TEST_DATABASE_URL not set")
	}

	s := NewPostgresStore(url)
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Skipf("Skipping test: database not available: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM tasks WHERE owner_id IN ('alice', 'bob', 'carol')"); err != nil {
		t.Fatalf("failed to clean up test data: %v", err)
	}
	_ = s.Close()

	runStoreSuite(t, s)
}

func TestJetStreamStore(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Skipf("Skipping test: NATS not available: %v", err)
	}
	nc.Close()

	bucket := "tasks-test-" + time.Now().Format("150405.000000")
	runStoreSuite(t, NewJetStreamStore(url, sanitizeBucket(bucket)))
}

func sanitizeBucket(name string) string {
	out := []byte(name)
	for i, c := range out {
		if c == '.' {
			out[i] = '-'
		}
	}
	return string(out)
}

func TestNew(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{"", DriverSQLite, false},
		{DriverSQLite, DriverSQLite, false},
		{DriverMemory, DriverMemory, false},
		{DriverPostgres, DriverPostgres, false},
		{DriverJetStream, DriverJetStream, false},
		{"mongodb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := New(Config{Driver: tt.driver})
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if s.Driver() != tt.want {
				t.Errorf("Driver() = %q, want %q", s.Driver(), tt.want)
			}
		})
	}
}

func TestSortNewestFirst_TieBreaksByID(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{{ID: "a", CreatedAt: at}, {ID: "c", CreatedAt: at}, {ID: "b", CreatedAt: at}}
	sortNewestFirst(tasks)
	if tasks[0].ID != "c" || tasks[1].ID != "b" || tasks[2].ID != "a" {
		t.Errorf("order = %s%s%s, want cba", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}
