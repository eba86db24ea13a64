package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/rs/zerolog"
)

var ErrNoHandler = errors.New("no handler registered for task kind")

// Handler delivers one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, payload []byte) error

const (
	defaultPollInterval = 2 * time.Second
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 10 * time.Minute
	defaultMaxAttempts  = 10
	defaultBatchSize    = 50
)

type Worker struct {
	store    *Store
	lock     sync.RWMutex
	handlers map[string]Handler

	pollInterval time.Duration
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxAttempts  int
	batchSize    int
	logger       zerolog.Logger
	nowFunc      func() time.Time
}

type WorkerOption func(*Worker)

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

// WithBackoff sets the first retry delay and the cap it doubles up to.
func WithBackoff(base, maxDelay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.baseDelay = base
		w.maxDelay = maxDelay
	}
}

// WithMaxAttempts sets how many failed attempts bury a task. Zero or less
// retries forever.
func WithMaxAttempts(attempts int) WorkerOption {
	return func(w *Worker) {
		w.maxAttempts = attempts
	}
}

func WithLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithNowFunc(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.nowFunc = now
	}
}

func NewWorker(store *Store, options ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, errors.New("[NewWorker] store is required")
	}
	w := &Worker{
		store:        store,
		handlers:     make(map[string]Handler),
		pollInterval: defaultPollInterval,
		baseDelay:    defaultBaseDelay,
		maxDelay:     defaultMaxDelay,
		maxAttempts:  defaultMaxAttempts,
		batchSize:    defaultBatchSize,
		logger:       zerolog.Nop(),
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

func (w *Worker) Register(kind string, handler Handler) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.handlers[kind] = handler
}

func (w *Worker) handler(kind string) Handler {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return w.handlers[kind]
}

// ProcessDue attempts every task that is due once and reports how many were
// delivered.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	tasks, err := w.store.Due(ctx, w.nowFunc(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("[Worker.ProcessDue] Due: %w", err)
	}

	delivered := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		ok, err := w.attempt(ctx, task)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

// attempt runs the task's handler once and records the result. The bool
// reports whether the task was delivered.
func (w *Worker) attempt(ctx context.Context, task *Task) (bool, error) {
	logger := w.logger.With().Str("task", task.ID).Str("kind", task.Kind).Int("attempt", task.Attempts+1).Logger()

	var err error
	handler := w.handler(task.Kind)
	if handler == nil {
		err = ErrNoHandler
	} else {
		err = handler(ctx, task.Payload)
	}

	if err == nil {
		metrics.OutboxTasksTotal.WithLabelValues(task.Kind, "delivered").Inc()
		logger.Debug().Msg("outbox task delivered")
		if ackErr := w.store.Ack(task.ID); ackErr != nil {
			return false, fmt.Errorf("[Worker.attempt] Ack: %w", ackErr)
		}
		return true, nil
	}

	if w.maxAttempts > 0 && task.Attempts+1 >= w.maxAttempts {
		metrics.OutboxTasksTotal.WithLabelValues(task.Kind, "dead").Inc()
		logger.Error().Err(err).Msg("outbox task exhausted its attempts")
		if buryErr := w.store.Bury(task.ID, err); buryErr != nil {
			return false, fmt.Errorf("[Worker.attempt] Bury: %w", buryErr)
		}
		return false, nil
	}

	next := w.nowFunc().Add(w.Backoff(task.Attempts))
	metrics.OutboxTasksTotal.WithLabelValues(task.Kind, "retried").Inc()
	logger.Warn().Err(err).Time("next_attempt", next).Msg("outbox task failed")
	if retryErr := w.store.Retry(task.ID, next, err); retryErr != nil {
		return false, fmt.Errorf("[Worker.attempt] Retry: %w", retryErr)
	}
	return false, nil
}

// Backoff is the delay after a task has failed attempts times before.
func (w *Worker) Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 30 {
		return w.maxDelay
	}
	delay := w.baseDelay << attempts
	if delay <= 0 || delay > w.maxDelay {
		return w.maxDelay
	}
	return delay
}

// Start runs the worker in the background. The returned stop cancels it and
// blocks until the in-flight poll has returned, after which the store may be
// closed.
func (w *Worker) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Run polls for due tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
