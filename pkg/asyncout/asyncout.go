// Package asyncout buffers textual output of long-running operations keyed by
// a caller-chosen task id, so partial output can be gathered silently and
// retrieved once the operation is ready to report.
//
// An Aggregator is explicitly owned: create one per run with New and pass it
// to the components that produce or flush output. Entries are created on the
// first Write for a task id and destroyed by Flush.
package asyncout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Placeholder is written to the foreground instead of the first chunk of
// output for a task.
const Placeholder = "** Gathering output from async task ... please hold\n"

// ErrUnknownTask is returned when flushing a task id that has no buffered
// output: it was never written, or it has already been flushed.
var ErrUnknownTask = errors.New("asyncout: no async output for task")

// Aggregator accumulates output per task id. It is safe for concurrent use.
type Aggregator struct {
	out io.Writer
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*strings.Builder
	// writeMu serializes foreground writes without holding mu across I/O.
	writeMu sync.Mutex
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger mirrors every foreground write to log at debug level.
func WithLogger(log *slog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// New returns an Aggregator that writes foreground output to out. A nil out
// discards it.
func New(out io.Writer, opts ...Option) *Aggregator {
	if out == nil {
		out = io.Discard
	}

	a := &Aggregator{
		out:     out,
		pending: make(map[string]*strings.Builder),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Write appends text to the buffer for taskID. The first write for a task
// creates the entry and emits Placeholder to the foreground; later writes
// emit nothing.
func (a *Aggregator) Write(taskID, text string) error {
	a.mu.Lock()
	buf, ok := a.pending[taskID]
	if !ok {
		buf = &strings.Builder{}
		a.pending[taskID] = buf
	}
	buf.WriteString(text)
	a.mu.Unlock()

	if ok {
		return nil
	}

	return a.Print(Placeholder)
}

// Flush removes and returns the accumulated output for taskID. Flushing an
// unknown task id fails with ErrUnknownTask.
func (a *Aggregator) Flush(taskID string) (string, error) {
	a.mu.Lock()
	buf, ok := a.pending[taskID]
	delete(a.pending, taskID)
	a.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	return buf.String(), nil
}

// Emit flushes taskID and writes a header followed by the gathered output to
// the foreground.
func (a *Aggregator) Emit(taskID string) error {
	data, err := a.Flush(taskID)
	if err != nil {
		return err
	}

	if err := a.Print(fmt.Sprintf("** Output for async task: %s\n\n", taskID)); err != nil {
		return err
	}

	return a.Print(data)
}

// Print writes text straight to the foreground.
func (a *Aggregator) Print(text string) error {
	if text == "" {
		return nil
	}

	if a.log != nil {
		a.log.Debug(text)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	_, err := io.WriteString(a.out, text)
	return err
}

// Pending returns the number of tasks with buffered output.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

type taskKey struct{}

// WithTask marks ctx as belonging to the async task taskID. Backends that
// report progress for calls issued under ctx have it routed to that task.
func WithTask(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskKey{}, taskID)
}

// TaskFromContext returns the async task id stored by WithTask.
func TaskFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskKey{}).(string)
	return id, ok && id != ""
}
