package domain

import "time"

// WarningType categorises a violation.
type WarningType string

const (
	WarningCancel WarningType = "CANCEL"
	WarningLate   WarningType = "LATE"
	WarningRude   WarningType = "RUDE"
	WarningSafety WarningType = "SAFETY"
	WarningNoShow WarningType = "NO_SHOW"
	WarningOther  WarningType = "OTHER"
)

func (w WarningType) Valid() bool {
	switch w {
	case WarningCancel, WarningLate, WarningRude, WarningSafety, WarningNoShow, WarningOther:
		return true
	}
	return false
}

// Violation is an immutable warning record.
type Violation struct {
	ID        int64       `db:"id"`
	ActorType ActorType   `db:"actor_type"`
	ActorID   int64       `db:"actor_id"`
	Category  WarningType `db:"category"`
	Reason    string      `db:"reason"`
	JobID     *int64      `db:"job_id"`
	IssuedBy  int64       `db:"issued_by"`
	CreatedAt time.Time   `db:"created_at"`
}

func (v Violation) Actor() Actor {
	return Actor{Type: v.ActorType, ID: v.ActorID}
}

type SuspensionKind string

const (
	SuspensionTemporary SuspensionKind = "TEMPORARY"
	SuspensionPermanent SuspensionKind = "PERMANENT"
)

func (k SuspensionKind) Valid() bool {
	return k == SuspensionTemporary || k == SuspensionPermanent
}

// Suspension is a loss of eligibility for one actor.
type Suspension struct {
	ID        int64          `db:"id"`
	ActorType ActorType      `db:"actor_type"`
	ActorID   int64          `db:"actor_id"`
	Kind      SuspensionKind `db:"kind"`
	Reason    string         `db:"reason"`
	StartAt   time.Time      `db:"start_at"`
	EndAt     *time.Time     `db:"end_at"`
	Active    bool           `db:"active"`
	Automatic bool           `db:"automatic"`
	IssuedBy  int64          `db:"issued_by"`
	LiftedBy  *int64         `db:"lifted_by"`
	LiftedAt  *time.Time     `db:"lifted_at"`
	CreatedAt time.Time      `db:"created_at"`
}

func (s Suspension) Actor() Actor {
	return Actor{Type: s.ActorType, ID: s.ActorID}
}

// InEffect reports whether the suspension blocks the actor at now.
func (s Suspension) InEffect(now time.Time) bool {
	if !s.Active {
		return false
	}
	return s.EndAt == nil || now.Before(*s.EndAt)
}
