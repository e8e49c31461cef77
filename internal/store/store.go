// Package store defines the persistence contract of the dispatch service.
// Entities live in id-keyed tables; a Match references its Job by id and
// nothing holds back-references.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write,
	// e.g. a second live match for a job or a second active suspension.
	ErrDuplicate = errors.New("store: duplicate")

	// ErrLockConflict is returned when a row lock could not be taken or the
	// transaction lost a serialization race.
	ErrLockConflict = errors.New("store: lock conflict")

	// ErrStale is returned when a conditional update matched no row because
	// the row changed since it was read.
	ErrStale = errors.New("store: stale row")
)

// Store is the transactional entry point.
type Store interface {
	Reader

	// WithTx runs fn in one transaction. fn's error rolls it back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListOpenJobs(ctx context.Context, q OpenJobsQuery) ([]domain.Job, error)
	ListSuspensions(ctx context.Context, q SuspensionQuery) ([]domain.Suspension, error)
	ListViolations(ctx context.Context, q ViolationQuery) ([]domain.Violation, error)
	ListGradeHistory(ctx context.Context, contractorID int64) ([]domain.GradeHistory, error)

	// ListExpiredSuspensions returns active temporary suspensions whose end
	// time is at or before now.
	ListExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]domain.Suspension, error)
	// ExpireSuspension deactivates one suspension only if it is still active
	// and due. It reports whether this call flipped it.
	ExpireSuspension(ctx context.Context, id int64, now time.Time) (bool, error)

	// SetReportURL stores url only when the match has none yet. It reports
	// whether the url was stored.
	SetReportURL(ctx context.Context, matchID int64, url string) (bool, error)

	Settings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Reader holds point reads available both inside and outside a transaction.
type Reader interface {
	GetJob(ctx context.Context, id int64) (domain.Job, error)
	GetMatch(ctx context.Context, id int64) (domain.Match, error)
	// GetMatchByJob returns the live match of a job, or its latest
	// cancelled one when no live match exists.
	GetMatchByJob(ctx context.Context, jobID int64) (domain.Match, error)
	GetContractor(ctx context.Context, id int64) (domain.Contractor, error)
	GetOrganization(ctx context.Context, id int64) (domain.Organization, error)
	ListEquipment(ctx context.Context, contractorID int64) ([]domain.Equipment, error)
	GetSuspension(ctx context.Context, id int64) (domain.Suspension, error)
	// ActiveSuspension returns the suspension in effect for actor at now.
	ActiveSuspension(ctx context.Context, actor domain.Actor, now time.Time) (domain.Suspension, error)
}

// Tx is a unit of work. Lock* methods take a row lock held until commit.
type Tx interface {
	Reader

	CreateJob(ctx context.Context, job domain.Job) (domain.Job, error)
	LockJob(ctx context.Context, id int64) (domain.Job, error)
	// UpdateJobStatus moves a job from one status to another and returns
	// ErrStale when the job is no longer in from.
	UpdateJobStatus(ctx context.Context, id int64, from, to domain.JobStatus, at time.Time) error

	CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error)
	LockMatchByJob(ctx context.Context, jobID int64) (domain.Match, error)
	// UpdateMatch writes m and returns ErrStale when the stored status is no
	// longer expected.
	UpdateMatch(ctx context.Context, m domain.Match, expected domain.MatchStatus) error

	CreateContractor(ctx context.Context, c domain.Contractor) (domain.Contractor, error)
	LockContractor(ctx context.Context, id int64) (domain.Contractor, error)
	UpdateContractor(ctx context.Context, c domain.Contractor) error
	CreateEquipment(ctx context.Context, e domain.Equipment) (domain.Equipment, error)
	UpdateEquipmentStatus(ctx context.Context, contractorID, equipmentID int64, status domain.EquipmentStatus) (domain.Equipment, error)
	CreateGradeHistory(ctx context.Context, h domain.GradeHistory) (domain.GradeHistory, error)
	CreateRating(ctx context.Context, r domain.Rating) (domain.Rating, error)

	// IncrementWarnings locks the actor row, bumps its warning counter and
	// returns the new count.
	IncrementWarnings(ctx context.Context, actor domain.Actor) (int, error)
	CreateViolation(ctx context.Context, v domain.Violation) (domain.Violation, error)
	// CreateSuspension returns ErrDuplicate when the actor already has an
	// active suspension.
	CreateSuspension(ctx context.Context, s domain.Suspension) (domain.Suspension, error)
	// LiftSuspension deactivates an active suspension and reports whether
	// this call flipped it.
	LiftSuspension(ctx context.Context, id, liftedBy int64, at time.Time) (bool, error)
}

// OpenJobsQuery selects candidate jobs. The optional release cutoffs and
// rating bound let the store apply exposure visibility before Limit.
type OpenJobsQuery struct {
	ScheduledFrom time.Time
	EquipmentType domain.EquipmentType
	// ReleasedBefore keeps non-urgent jobs created at or before it.
	ReleasedBefore *time.Time
	// UrgentReleasedBefore keeps urgent jobs created at or before it.
	UrgentReleasedBefore *time.Time
	// Rating drops jobs whose minimum rating is above it.
	Rating *float64
	Offset int
	Limit  int
}

type SuspensionQuery struct {
	Actor      *domain.Actor
	ActiveOnly bool
	Limit      int
}

// ViolationQuery pages violations newest first; After is an exclusive
// (created_at, id) cursor.
type ViolationQuery struct {
	Actor *domain.Actor
	After *Cursor
	Limit int
}

type Cursor struct {
	CreatedAt time.Time
	ID        int64
}
