// Package ask provides a request/response exchange between code that needs
// an answer from an operator and a frontend that collects it. Questions are
// registered as pending, announced through a callback, and the asker blocks
// until Respond delivers an answer or its context is cancelled.
package ask

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrEmptyQuestion is returned by Ask for an empty question text.
var ErrEmptyQuestion = errors.New("ask: question is required")

// Question is one pending question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// OnAskFunc is called when a new question is posed. Implementations should
// notify the frontend so it can present the question and collect a response.
type OnAskFunc func(ctx context.Context, q Question)

// Responder manages pending questions and their responses.
type Responder struct {
	mu        sync.Mutex
	pending   map[string]chan string
	questions map[string]Question
	onAsk     OnAskFunc
	nextID    atomic.Int64
}

// NewResponder creates a Responder. If onAsk is nil, questions are still
// registered and can be discovered through Pending.
func NewResponder(onAsk OnAskFunc) *Responder {
	return &Responder{
		pending:   make(map[string]chan string),
		questions: make(map[string]Question),
		onAsk:     onAsk,
	}
}

// Respond delivers a response to a pending question. It returns an error if
// the question ID is not found or the receiver is no longer listening.
func (r *Responder) Respond(questionID, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.pending[questionID]
	if !ok {
		return fmt.Errorf("ask: question %q not found", questionID)
	}

	// Buffered (size 1): the send cannot block while the entry is pending.
	select {
	case ch <- response:
		delete(r.pending, questionID)
		delete(r.questions, questionID)
		return nil
	default:
		return fmt.Errorf("ask: question %q is no longer awaiting a response", questionID)
	}
}

// Pending returns the questions still awaiting a response, oldest first.
func (r *Responder) Pending() []Question {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Question, 0, len(r.questions))
	for _, q := range r.questions {
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b Question) int {
		return cmpID(a.ID, b.ID)
	})

	return out
}

// Ask poses a question and blocks until a response is received or the
// context is cancelled.
func (r *Responder) Ask(ctx context.Context, text string, options []string) (string, error) {
	if text == "" {
		return "", ErrEmptyQuestion
	}

	id := fmt.Sprintf("q-%d", r.nextID.Add(1))
	ch := make(chan string, 1)
	q := Question{
		ID:      id,
		Text:    text,
		Options: options,
	}

	r.mu.Lock()
	r.pending[id] = ch
	r.questions[id] = q
	r.mu.Unlock()

	if r.onAsk != nil {
		r.onAsk(ctx, q)
	}

	select {
	case <-ctx.Done():
		// A response may have raced the cancellation.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}

		r.mu.Lock()
		delete(r.pending, id)
		delete(r.questions, id)
		r.mu.Unlock()

		return "", ctx.Err()
	case resp := <-ch:
		return resp, nil
	}
}

// cmpID orders "q-<n>" ids numerically.
func cmpID(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
