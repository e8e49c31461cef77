// Package notify carries domain events to the notification channel. Events
// are fire-and-forget: publishing never fails the operation that produced
// them.
package notify

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	NewDispatch        Type = "NEW_DISPATCH"
	DispatchAccepted   Type = "DISPATCH_ACCEPTED"
	DispatchArrived    Type = "DISPATCH_ARRIVED"
	DispatchCompleted  Type = "DISPATCH_COMPLETED"
	DispatchCancelled  Type = "DISPATCH_CANCELLED"
	ContractorApproved Type = "DRIVER_APPROVED"
	ContractorRejected Type = "DRIVER_REJECTED"
)

// Recipient kinds.
const (
	ToRequester  = "REQUESTER"
	ToContractor = "CONTRACTOR"
	ToBroadcast  = "BROADCAST"
)

// Event is one notification. ID is a ULID, so events sort by creation time.
type Event struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	JobID         int64             `json:"job_id,omitempty"`
	MatchID       int64             `json:"match_id,omitempty"`
	RecipientKind string            `json:"recipient_kind"`
	RecipientID   int64             `json:"recipient_id,omitempty"`
	Title         string            `json:"title"`
	Data          map[string]string `json:"data,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// NewEvent stamps an event of type t addressed to one recipient.
func NewEvent(t Type, recipientKind string, recipientID int64, title string) Event {
	now := time.Now().UTC()
	return Event{
		ID:            newID(now),
		Type:          t,
		RecipientKind: recipientKind,
		RecipientID:   recipientID,
		Title:         title,
		OccurredAt:    now,
	}
}

// ForJob attaches job and match references.
func (e Event) ForJob(jobID, matchID int64) Event {
	e.JobID = jobID
	e.MatchID = matchID
	return e
}

func (e Event) With(key, value string) Event {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}
