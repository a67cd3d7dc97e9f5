package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// maxUpdateAttempts bounds compare-and-set retries on concurrent writes.
const maxUpdateAttempts = 3

// JetStreamStore persists tasks as JSON values in a NATS JetStream KV bucket.
// Keys are "<owner>.<task>" with both tokens base64url encoded, so listing an
// owner's tasks is a wildcard watch on "<owner>.*".
type JetStreamStore struct {
	mu      sync.RWMutex
	conn    *nats.Conn
	bucket  jetstream.KeyValue
	natsURL string
	name    string
}

var _ Store = (*JetStreamStore)(nil)

// NewJetStreamStore creates an unconnected KV store.
func NewJetStreamStore(natsURL, bucket string) *JetStreamStore {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	if bucket == "" {
		bucket = "tasks"
	}
	return &JetStreamStore{natsURL: natsURL, name: bucket}
}

func (s *JetStreamStore) Driver() string {
	return DriverJetStream
}

// Connect dials NATS and creates the bucket if it does not exist.
func (s *JetStreamStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	log.Printf("[store] Connecting to NATS JetStream KV bucket %q at %s", s.name, s.natsURL)

	conn, err := nats.Connect(s.natsURL)
	if err != nil {
		return unavailable("connect", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return unavailable("jetstream", err)
	}

	bucket, err := js.KeyValue(ctx, s.name)
	if err != nil {
		bucket, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      s.name,
			Description: "Task records keyed by owner and task id",
		})
		if err != nil {
			conn.Close()
			return unavailable("create bucket", err)
		}
	}

	s.conn = conn
	s.bucket = bucket
	return nil
}

// Close closes the NATS connection.
func (s *JetStreamStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn.Close()
	s.conn = nil
	s.bucket = nil
	return nil
}

func (s *JetStreamStore) kv() (jetstream.KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.bucket, nil
}

func (s *JetStreamStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if !s.conn.IsConnected() {
		return unavailable("ping", fmt.Errorf("nats status %s", s.conn.Status()))
	}
	return nil
}

func encodeToken(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func taskKey(id, ownerID string) string {
	return encodeToken(ownerID) + "." + encodeToken(id)
}

func (s *JetStreamStore) get(ctx context.Context, kv jetstream.KeyValue, id, ownerID string) (domain.Task, uint64, error) {
	if id == "" || ownerID == "" {
		return domain.Task{}, 0, domain.ErrNotFound
	}

	entry, err := kv.Get(ctx, taskKey(id, ownerID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return domain.Task{}, 0, domain.ErrNotFound
		}
		return domain.Task{}, 0, unavailable("get task", err)
	}

	var t domain.Task
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return domain.Task{}, 0, unavailable("decode task", err)
	}
	return t, entry.Revision(), nil
}

func (s *JetStreamStore) FindByOwner(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	kv, err := s.kv()
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, 0)
	if ownerID == "" {
		return tasks, nil
	}

	watcher, err := kv.Watch(ctx, encodeToken(ownerID)+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, unavailable("watch tasks", err)
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil, unavailable("watch tasks", ctx.Err())
		case entry, ok := <-watcher.Updates():
			// A nil entry marks the end of the initial values.
			if !ok || entry == nil {
				sortNewestFirst(tasks)
				return tasks, nil
			}
			var t domain.Task
			if err := json.Unmarshal(entry.Value(), &t); err != nil {
				return nil, unavailable("decode task", err)
			}
			if filter.Matches(t) {
				tasks = append(tasks, t)
			}
		}
	}
}

func (s *JetStreamStore) FindOne(ctx context.Context, id, ownerID string) (domain.Task, error) {
	kv, err := s.kv()
	if err != nil {
		return domain.Task{}, err
	}
	t, _, err := s.get(ctx, kv, id, ownerID)
	return t, err
}

func (s *JetStreamStore) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	kv, err := s.kv()
	if err != nil {
		return domain.Task{}, err
	}

	t = prepareInsert(t, time.Now())
	data, err := json.Marshal(t)
	if err != nil {
		return domain.Task{}, unavailable("encode task", err)
	}

	if _, err := kv.Create(ctx, taskKey(t.ID, t.OwnerID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return domain.Task{}, unavailable("insert task", errDuplicateID)
		}
		return domain.Task{}, unavailable("insert task", err)
	}
	return t, nil
}

// UpdateFields applies fields with a revision-checked write, retrying when a
// concurrent writer got there first.
func (s *JetStreamStore) UpdateFields(ctx context.Context, id, ownerID string, fields domain.Fields) (domain.Task, error) {
	kv, err := s.kv()
	if err != nil {
		return domain.Task{}, err
	}

	for attempt := 1; ; attempt++ {
		t, revision, err := s.get(ctx, kv, id, ownerID)
		if err != nil {
			return domain.Task{}, err
		}

		fields.Apply(&t, time.Now())
		data, err := json.Marshal(t)
		if err != nil {
			return domain.Task{}, unavailable("encode task", err)
		}

		_, err = kv.Update(ctx, taskKey(id, ownerID), data, revision)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) || attempt == maxUpdateAttempts {
			return domain.Task{}, unavailable("update task", err)
		}
	}
}

// Delete removes the key only at the revision it read, so of two concurrent
// deletes exactly one succeeds and the other reports ErrNotFound.
func (s *JetStreamStore) Delete(ctx context.Context, id, ownerID string) (domain.Task, error) {
	kv, err := s.kv()
	if err != nil {
		return domain.Task{}, err
	}

	for attempt := 1; ; attempt++ {
		t, revision, err := s.get(ctx, kv, id, ownerID)
		if err != nil {
			return domain.Task{}, err
		}

		err = kv.Delete(ctx, taskKey(id, ownerID), jetstream.LastRevision(revision))
		if err == nil {
			return t, nil
		}
		// A revision mismatch means another writer got there first: re-read,
		// which reports ErrNotFound if that writer deleted it.
		if !errors.Is(err, jetstream.ErrKeyExists) || attempt == maxUpdateAttempts {
			return domain.Task{}, unavailable("delete task", err)
		}
	}
}
