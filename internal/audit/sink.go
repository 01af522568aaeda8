package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Sink stamps and writes records synchronously.
type Sink struct {
	writer Writer
	clock  clock.PassiveClock
}

func NewSink(writer Writer, clk clock.PassiveClock) *Sink {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sink{writer: writer, clock: clk}
}

// Record writes one row. The timestamp is taken here, in UTC, never from
// the caller.
func (s *Sink) Record(ctx context.Context, username, token, payload, message string) error {
	return s.write(ctx, s.stamp(username, token, payload, message))
}

func (s *Sink) stamp(username, token, payload, message string) Record {
	return Record{
		ID:        uuid.New().String(),
		Username:  username,
		Token:     token,
		Payload:   payload,
		Message:   message,
		CreatedAt: s.clock.Now().UTC(),
	}
}

func (s *Sink) write(ctx context.Context, record Record) error {
	if err := s.writer.SaveLoginInfo(ctx, record); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

// AsyncSink queues records for a background worker so the caller never
// waits on the database. Records are stamped when queued.
type AsyncSink struct {
	sink    *Sink
	logger  *zap.Logger
	onError func(error)

	records chan Record

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewAsyncSink starts the worker. onError, when set, is called for every
// queued record the worker could not store.
func NewAsyncSink(sink *Sink, bufferSize int, logger *zap.Logger, onError func(error)) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if onError == nil {
		onError = func(error) {}
	}

	s := &AsyncSink{
		sink:    sink,
		logger:  logger.Named("audit"),
		onError: onError,
		records: make(chan Record, bufferSize),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Record queues a record without blocking. A full buffer drops the record
// and returns a *StorageError; reporting it is left to the caller.
func (s *AsyncSink) Record(_ context.Context, username, token, payload, message string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &StorageError{Err: ErrSinkClosed}
	}

	select {
	case s.records <- s.sink.stamp(username, token, payload, message):
		return nil
	default:
		return &StorageError{Err: ErrBufferFull}
	}
}

// Shutdown stops accepting records and waits for the queue to drain or ctx
// to end.
func (s *AsyncSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()

	for record := range s.records {
		if err := s.sink.write(context.Background(), record); err != nil {
			s.logger.Error("failed to record login attempt", zap.String("username", record.Username), zap.Error(err))
			s.onError(err)
		}
	}
}
