// Package sessiontest provides a counting, scriptable session.Session for
// tests of the decorators and the multiplexer.
package sessiontest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Span records when the backend-side work of one call started and finished.
type Span struct {
	Tool  string
	Start time.Time
	End   time.Time
}

// Stub is a session.Session whose behaviour is driven by its exported fields.
// All counters are safe to read concurrently with calls in flight.
type Stub struct {
	ToolboxName string
	Tools       []session.Capability
	// Delay is slept inside every CallTool, honouring ctx.
	Delay time.Duration
	// CallErr, when set, is returned by every CallTool.
	CallErr error
	// ListErr, when set, is returned by every ListTools.
	ListErr error
	// ConnectErr, when set, is returned by every Connect.
	ConnectErr error
	// DisconnectErr, when set, is returned by every Disconnect.
	DisconnectErr error
	// Respond builds the result for a call; defaults to echoing the arguments.
	Respond func(name string, args json.RawMessage) *session.Result

	mu          sync.Mutex
	connects    int
	disconnects int
	lists       int
	calls       []string
	args        []json.RawMessage
	spans       []Span
	connected   bool
	inFlight    int
	maxInFlight int
}

var _ session.Session = (*Stub)(nil)

// Name implements session.Session.
func (s *Stub) Name() string { return s.ToolboxName }

// Connect implements session.Session.
func (s *Stub) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connects++
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.connected = true
	return nil
}

// Disconnect implements session.Session.
func (s *Stub) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnects++
	s.connected = false
	return s.DisconnectErr
}

// ListTools implements session.Session.
func (s *Stub) ListTools(_ context.Context) ([]session.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists++
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	out := make([]session.Capability, len(s.Tools))
	copy(out, s.Tools)
	return out, nil
}

// CallTool implements session.Session.
func (s *Stub) CallTool(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	start := time.Now()
	var err error
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = ctx.Err()
		case <-timer.C:
		}
	}
	end := time.Now()

	s.mu.Lock()
	s.inFlight--
	s.spans = append(s.spans, Span{Tool: name, Start: start, End: end})
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if s.CallErr != nil {
		return nil, s.CallErr
	}
	if s.Respond != nil {
		return s.Respond(name, args), nil
	}

	return session.TextResult(string(args), false), nil
}

// Connects returns how many times Connect was called.
func (s *Stub) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Disconnects returns how many times Disconnect was called.
func (s *Stub) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Lists returns how many times ListTools was called.
func (s *Stub) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// Calls returns the tool names passed to CallTool, in order.
func (s *Stub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Args returns the arguments passed to CallTool, in order.
func (s *Stub) Args() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.args...)
}

// Spans returns the recorded backend work intervals, in completion order.
func (s *Stub) Spans() []Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Span(nil), s.spans...)
}

// Connected reports whether the last Connect has not been followed by a
// Disconnect.
func (s *Stub) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// MaxInFlight returns the highest number of concurrent CallTool executions
// observed.
func (s *Stub) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}
