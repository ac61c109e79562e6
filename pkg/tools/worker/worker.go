// Package worker confines a session.Session to one dedicated goroutine. Every
// operation is marshalled onto that goroutine over a bounded channel and the
// caller blocks until the reply arrives or its context ends.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// DefaultQueueSize bounds the number of marshalled operations waiting for the
// worker when New is given a non-positive size.
const DefaultQueueSize = 16

// ErrStopped is returned for operations issued while the worker is not
// running.
var ErrStopped = errors.New("worker: stopped")

// Session runs every operation of the wrapped session on a dedicated
// goroutine started by Connect and joined by Disconnect.
type Session struct {
	inner     session.Session
	log       *slog.Logger
	queueSize int

	mu   sync.Mutex
	loop *loop
}

var _ session.Session = (*Session)(nil)

// New wraps inner. A nil logger uses slog.Default().
func New(inner session.Session, queueSize int, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Session{
		inner:     inner,
		log:       log.With("toolbox", inner.Name()),
		queueSize: queueSize,
	}
}

// Name implements session.Session.
func (s *Session) Name() string { return s.inner.Name() }

// Connect starts the worker if needed and connects the wrapped session on it.
// When a Connect that started the worker fails, the wrapped session is
// disconnected on the worker and the worker is stopped before returning. The
// inner connect may have completed after the caller gave up.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	started := s.loop == nil
	if started {
		s.loop = startLoop(s.queueSize)
		s.log.DebugContext(ctx, "worker started")
	}
	l := s.loop
	s.mu.Unlock()

	_, err := marshal(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Connect(ctx)
	})
	if err == nil || !started {
		return err
	}

	s.mu.Lock()
	if s.loop == l {
		s.loop = nil
	}
	s.mu.Unlock()

	if _, derr := marshal(context.WithoutCancel(ctx), l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Disconnect(ctx)
	}); derr != nil {
		s.log.DebugContext(ctx, "disconnect after failed connect", "error", derr)
	}
	l.stop()
	s.log.DebugContext(ctx, "worker stopped after failed connect", "error", err)

	return err
}

// Disconnect disconnects the wrapped session on the worker, then stops and
// joins the worker. The teardown is not bound to ctx cancellation; a
// cancellation reported by the wrapped session is logged and swallowed.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	l := s.loop
	s.loop = nil
	s.mu.Unlock()

	if l == nil {
		return nil
	}

	_, err := marshal(context.WithoutCancel(ctx), l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Disconnect(ctx)
	})
	l.stop()
	s.log.DebugContext(ctx, "worker stopped")

	if errors.Is(err, context.Canceled) {
		s.log.DebugContext(ctx, "disconnect cancelled during teardown", "error", err)
		return nil
	}

	return err
}

// ListTools implements session.Session.
func (s *Session) ListTools(ctx context.Context) ([]session.Capability, error) {
	l, err := s.current()
	if err != nil {
		return nil, err
	}

	return marshal(ctx, l, s.inner.ListTools)
}

// CallTool implements session.Session.
func (s *Session) CallTool(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	l, err := s.current()
	if err != nil {
		return nil, err
	}

	return marshal(ctx, l, func(ctx context.Context) (*session.Result, error) {
		return s.inner.CallTool(ctx, name, args)
	})
}

func (s *Session) current() (*loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop == nil {
		return nil, ErrStopped
	}
	return s.loop, nil
}

type loop struct {
	jobs     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startLoop(size int) *loop {
	l := &loop{
		jobs: make(chan func(), size),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()

	return l
}

func (l *loop) run() {
	defer close(l.done)

	for {
		select {
		case job := <-l.jobs:
			job()
		case <-l.quit:
			return
		}
	}
}

func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

type outcome[T any] struct {
	value T
	err   error
}

// marshal runs fn on the worker goroutine. The reply channel is buffered so
// the worker never blocks on a caller that has given up.
func marshal[T any](ctx context.Context, l *loop, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	reply := make(chan outcome[T], 1)
	job := func() {
		v, err := fn(ctx)
		reply <- outcome[T]{value: v, err: err}
	}

	select {
	case l.jobs <- job:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.done:
		return zero, ErrStopped
	}

	select {
	case out := <-reply:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.done:
		// The job may have completed just before the worker exited.
		select {
		case out := <-reply:
			return out.value, out.err
		default:
			return zero, ErrStopped
		}
	}
}
