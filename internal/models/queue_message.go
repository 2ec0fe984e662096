package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow identifies an external-sync action the orchestrator can schedule.
type Workflow string

const (
	WorkflowNewCrash   Workflow = "new_crash"
	WorkflowNewComment Workflow = "new_comment"
)

// Queue message types, used for handler routing.
const (
	MessageTypeNewCrash     = "github_new_crash"
	MessageTypeNewComment   = "github_new_comment"
	MessageTypeSchemaUpdate = "schema_update"
)

// MessageTypeFor maps a workflow to its queue message type.
func MessageTypeFor(workflow Workflow) string {
	if workflow == WorkflowNewComment {
		return MessageTypeNewComment
	}
	return MessageTypeNewCrash
}

// QueueMessage is the envelope stored in the durable queue. Keep it small -
// just enough to route the job. Handlers re-fetch current state by fingerprint
// rather than trusting a snapshot captured at schedule time.
type QueueMessage struct {
	ID           string    `badgerhold:"key" json:"id"`
	Type         string    `badgerhold:"index" json:"type"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Cursor       string    `json:"cursor,omitempty"` // batch continuation for schema updates
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
	Dead         bool      `badgerhold:"index" json:"dead"`
}

// NewQueueMessage creates a message for the given type and fingerprint.
func NewQueueMessage(msgType, fingerprint string) *QueueMessage {
	now := time.Now()
	return &QueueMessage{
		ID:          uuid.NewString(),
		Type:        msgType,
		Fingerprint: fingerprint,
		EnqueuedAt:  now,
		VisibleAt:   now,
	}
}

// NewSchemaUpdateMessage creates a migration batch message starting after cursor.
func NewSchemaUpdateMessage(cursor string) *QueueMessage {
	msg := NewQueueMessage(MessageTypeSchemaUpdate, "")
	msg.Cursor = cursor
	return msg
}
