// Package outbox replicates locally-applied chat messages to the
// session service in the background. Delivery is fire-and-forget: an
// operation is attempted once and marked confirmed or failed, never
// retried, and never blocks the send path.
package outbox

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zufan/internal/models"
)

var outboxDebugEnabled = strings.EqualFold(os.Getenv("ZUFAN_OUTBOX_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if outboxDebugEnabled {
		log.Printf(format, args...)
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Remote is the slice of the session service the outbox needs.
type Remote interface {
	AddMessage(ctx context.Context, sessionID string, msg models.Message) error
}

// Operation is one tracked delivery.
type Operation struct {
	ID         string
	SessionID  string
	Message    models.Message
	Status     Status
	Err        string
	EnqueuedAt time.Time
}

const defaultQueueSize = 64

// Outbox owns a single delivery worker fed by a bounded queue.
type Outbox struct {
	remote Remote

	mu  sync.Mutex
	ops map[string]*Operation

	queue chan string
	done  chan struct{}
	once  sync.Once
}

func New(remote Remote) *Outbox {
	o := &Outbox{
		remote: remote,
		ops:    make(map[string]*Operation),
		queue:  make(chan string, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

// EnqueueMessage records a pending delivery and hands it to the worker.
// When the queue is full the operation is marked failed immediately
// rather than blocking the caller.
func (o *Outbox) EnqueueMessage(sessionID string, msg models.Message) {
	op := &Operation{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Message:    msg,
		Status:     StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
	o.mu.Lock()
	o.ops[op.ID] = op
	o.mu.Unlock()

	select {
	case o.queue <- op.ID:
	default:
		o.finish(op.ID, StatusFailed, "queue full")
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	for id := range o.queue {
		o.deliver(id)
	}
}

func (o *Outbox) deliver(id string) {
	o.mu.Lock()
	op, ok := o.ops[id]
	if !ok || op.Status != StatusPending {
		o.mu.Unlock()
		return
	}
	sessionID, msg := op.SessionID, op.Message
	o.mu.Unlock()

	// the send path has already returned; deliveries run on their own
	// lifetime without a deadline
	if err := o.remote.AddMessage(context.Background(), sessionID, msg); err != nil {
		log.Printf("outbox: deliver message to session %s failed: %v", sessionID, err)
		o.finish(id, StatusFailed, err.Error())
		return
	}
	debugLog("outbox: delivered message %s to session %s", msg.ID, sessionID)
	o.finish(id, StatusConfirmed, "")
}

func (o *Outbox) finish(id string, status Status, errText string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if op, ok := o.ops[id]; ok {
		op.Status = status
		op.Err = errText
	}
}

// Operations returns a snapshot of every tracked operation.
func (o *Outbox) Operations() []Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Operation, 0, len(o.ops))
	for _, op := range o.ops {
		out = append(out, *op)
	}
	return out
}

// Flush waits until no operation is pending or the context expires.
func (o *Outbox) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !o.hasPending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Outbox) hasPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, op := range o.ops {
		if op.Status == StatusPending {
			return true
		}
	}
	return false
}

// Close stops accepting work and waits for queued deliveries to finish.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.queue)
		<-o.done
	})
}
