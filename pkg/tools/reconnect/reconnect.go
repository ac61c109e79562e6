// Package reconnect provides a session.Session decorator for backends that
// degrade when a connection is held open. Every ListTools and CallTool runs
// inside its own connect/operate/disconnect bracket.
package reconnect

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Session brackets each operation on the wrapped session with a fresh
// connect and an unconditional disconnect.
type Session struct {
	inner session.Session
	log   *slog.Logger
	mu    sync.Mutex
}

var _ session.Session = (*Session)(nil)

// New wraps inner. A nil logger uses slog.Default().
func New(inner session.Session, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		inner: inner,
		log:   log.With("toolbox", inner.Name()),
	}
}

// Name implements session.Session.
func (s *Session) Name() string { return s.inner.Name() }

// Connect is absorbed; connection lifetime is owned per operation.
func (s *Session) Connect(ctx context.Context) error {
	s.log.DebugContext(ctx, "ignoring connect on reconnecting session")
	return nil
}

// Disconnect is absorbed; connection lifetime is owned per operation.
func (s *Session) Disconnect(ctx context.Context) error {
	s.log.DebugContext(ctx, "ignoring disconnect on reconnecting session")
	return nil
}

// ListTools implements session.Session.
func (s *Session) ListTools(ctx context.Context) ([]session.Capability, error) {
	var caps []session.Capability
	err := s.bracket(ctx, func(ctx context.Context) error {
		var err error
		caps, err = s.inner.ListTools(ctx)
		return err
	})

	return caps, err
}

// CallTool implements session.Session. A failed call is returned after the
// disconnect has run; it is never retried.
func (s *Session) CallTool(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	var result *session.Result
	err := s.bracket(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.inner.CallTool(ctx, name, args)
		return err
	})

	return result, err
}

func (s *Session) bracket(ctx context.Context, op func(context.Context) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inner.Connect(ctx); err != nil {
		// A half-open connect may still hold a subprocess.
		if derr := s.inner.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			s.log.DebugContext(ctx, "disconnect after failed connect", "error", derr)
		}
		return err
	}

	defer func() {
		if derr := s.inner.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			s.log.WarnContext(ctx, "disconnect after operation failed", "error", derr)
			if err == nil {
				err = derr
			} else {
				err = errors.Join(err, derr)
			}
		}
	}()

	return op(ctx)
}
