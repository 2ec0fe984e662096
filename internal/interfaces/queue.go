package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/fragor/internal/models"
)

// ErrNoMessage is returned when the queue has no visible messages.
var ErrNoMessage = errors.New("no messages in queue")

// JobHandler processes one queue message. Delivery is at least once; handlers
// must tolerate duplicate and delayed executions.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// QueueManager manages the durable message queue.
type QueueManager interface {
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
	// Receive leases the next visible message for the visibility timeout.
	// A leased message that is not deleted becomes visible again on expiry.
	Receive(ctx context.Context) (*models.QueueMessage, error)
	Delete(ctx context.Context, id string) error
	Extend(ctx context.Context, id string, d time.Duration) error
	Length(ctx context.Context) (int, error)
	// PurgeDead removes dead-lettered messages older than the given age.
	PurgeDead(ctx context.Context, olderThan time.Duration) (int, error)
}

// WorkerPool polls the queue and dispatches messages to registered handlers.
type WorkerPool interface {
	RegisterHandler(msgType string, handler JobHandler)
	Start() error
	Stop() error
}
