// Package outbox is a durable task queue: tasks survive restarts and are
// removed only once their handler has succeeded.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketTasks = []byte("tasks")
	bucketDead  = []byte("dead")
)

var ErrTaskNotFound = errors.New("task not found")

// Task ids are uuid v7, so key order in the bucket is enqueue order.
type Task struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens (creating if needed) the bbolt file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTasks, bucketDead} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Enqueue stores a task that is due immediately. payload is JSON encoded.
func (s *Store) Enqueue(ctx context.Context, kind string, payload any) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task id: %w", err)
	}

	now := s.now().UTC()
	task := &Task{
		ID:            id.String(),
		Kind:          kind,
		Payload:       data,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return putTask(tx.Bucket(bucketTasks), task)
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// Due returns up to limit tasks whose next attempt is not after now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tasks []*Task
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(tasks) >= limit {
				break
			}
			var task Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("failed to unmarshal task %s: %w", k, err)
			}
			if task.NextAttemptAt.After(now) {
				continue
			}
			tasks = append(tasks, &task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Ack removes a delivered task.
func (s *Store) Ack(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTasks)
		if bucket.Get([]byte(id)) == nil {
			return ErrTaskNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

// Retry records a failed attempt and schedules the next one.
func (s *Store) Retry(id string, next time.Time, cause error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTasks)
		task, err := getTask(bucket, id)
		if err != nil {
			return err
		}
		task.Attempts++
		task.NextAttemptAt = next.UTC()
		task.LastError = errorText(cause)
		return putTask(bucket, task)
	})
}

// Bury moves a task that will not be retried again to the dead bucket.
func (s *Store) Bury(id string, cause error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		task, err := getTask(tasks, id)
		if err != nil {
			return err
		}
		task.Attempts++
		task.LastError = errorText(cause)
		if err := putTask(tx.Bucket(bucketDead), task); err != nil {
			return err
		}
		return tasks.Delete([]byte(id))
	})
}

// Len is the number of pending tasks.
func (s *Store) Len() (int, error) {
	return s.count(bucketTasks)
}

// DeadLen is the number of tasks that exhausted their attempts.
func (s *Store) DeadLen() (int, error) {
	return s.count(bucketDead)
}

func (s *Store) count(name []byte) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(name).Stats().KeyN
		return nil
	})
	return n, err
}

func getTask(bucket *bbolt.Bucket, id string) (*Task, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, ErrTaskNotFound
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &task, nil
}

func putTask(bucket *bbolt.Bucket, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := bucket.Put([]byte(task.ID), data); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
