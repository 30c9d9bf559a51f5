// Package engine contains the per-group operation queue and the single
// worker that fans operations out to every member's private chat.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/masquebot/masquebot/internal/store"
)

// Kind selects the fan-out strategy for an operation.
type Kind int

const (
	KindBroadcast Kind = iota + 1
	KindEdit
	KindDelete
	KindPin
	KindUnpin
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindEdit:
		return "edit"
	case KindDelete:
		return "delete"
	case KindPin:
		return "pin"
	case KindUnpin:
		return "unpin"
	default:
		return "unknown"
	}
}

// Source describes the originator-side message an operation works on.
// Text carries the body for text messages and the caption for media.
type Source struct {
	ChatID int64
	MID    int
	IsText bool
	Text   string
}

// Operation is one unit of work for a group worker. Requests and
// Errors are owned by the worker until Done is closed; afterwards they
// are safe to read.
type Operation struct {
	Kind    Kind
	Member  *store.Member
	Message *store.Message
	ReplyTo *store.Message
	Source  Source
	Created time.Time

	Requests int
	Errors   int

	once sync.Once
	done chan struct{}
}

// NewOperation builds an operation for the given originator and stored
// message.
func NewOperation(kind Kind, m *store.Member, msg *store.Message) *Operation {
	return &Operation{
		Kind:    kind,
		Member:  m,
		Message: msg,
		Created: time.Now(),
		done:    make(chan struct{}),
	}
}

// Done is closed when the worker has finished the operation.
func (o *Operation) Done() <-chan struct{} { return o.done }

func (o *Operation) finish() {
	o.once.Do(func() { close(o.done) })
}

// ErrTimeout is returned by Wait when the operation does not finish in
// time; the operation itself keeps running.
var ErrTimeout = errors.New("operation did not finish in time")

// Wait blocks until the operation finishes, the timeout elapses, or
// ctx is cancelled.
func Wait(ctx context.Context, op *Operation, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-op.Done():
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// content renders the masked body: "mask | text" for anything with a
// body, a fixed notice for bare media.
func (o *Operation) content() string {
	if o.Source.Text != "" {
		return o.Message.Mask + " | " + o.Source.Text
	}
	return o.Message.Mask + " has sent a media."
}
