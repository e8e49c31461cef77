package domain

import "time"

// MatchStatus is the fine-grained progress status of a matched job.
type MatchStatus string

const (
	MatchAccepted  MatchStatus = "ACCEPTED"
	MatchEnRoute   MatchStatus = "EN_ROUTE"
	MatchArrived   MatchStatus = "ARRIVED"
	MatchWorking   MatchStatus = "WORKING"
	MatchCompleted MatchStatus = "COMPLETED"
	MatchSigned    MatchStatus = "SIGNED"
	MatchCancelled MatchStatus = "CANCELLED"
)

// Match binds one job to one contractor and the equipment unit offered.
type Match struct {
	ID           int64       `db:"id"`
	JobID        int64       `db:"job_id"`
	ContractorID int64       `db:"contractor_id"`
	EquipmentID  int64       `db:"equipment_id"`
	Status       MatchStatus `db:"status"`
	FinalPrice   *int64      `db:"final_price"`
	WorkNotes    *string     `db:"work_notes"`

	MatchedAt     time.Time  `db:"matched_at"`
	DepartedAt    *time.Time `db:"departed_at"`
	ArrivedAt     *time.Time `db:"arrived_at"`
	WorkStartedAt *time.Time `db:"work_started_at"`
	CompletedAt   *time.Time `db:"completed_at"`

	ContractorSignature *string    `db:"contractor_signature"`
	ContractorSignedAt  *time.Time `db:"contractor_signed_at"`
	ClientSignature     *string    `db:"client_signature"`
	ClientName          *string    `db:"client_name"`
	ClientSignedAt      *time.Time `db:"client_signed_at"`
	OrgConfirmed        bool       `db:"org_confirmed"`
	OrgSignature        *string    `db:"org_signature"`
	OrgSignerName       *string    `db:"org_signer_name"`
	OrgConfirmedAt      *time.Time `db:"org_confirmed_at"`

	CancelledAt  *time.Time `db:"cancelled_at"`
	CancelledBy  *int64     `db:"cancelled_by"`
	CancelReason *string    `db:"cancel_reason"`
	ReportURL    *string    `db:"report_url"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// IsTerminal reports whether the match is Signed or Cancelled.
func (m Match) IsTerminal() bool {
	return m.Status == MatchSigned || m.Status == MatchCancelled
}

// Stamp records the timestamp belonging to the transition that produced status.
func (m *Match) Stamp(status MatchStatus, at time.Time) {
	t := at
	switch status {
	case MatchEnRoute:
		m.DepartedAt = &t
	case MatchArrived:
		m.ArrivedAt = &t
	case MatchWorking:
		m.WorkStartedAt = &t
	case MatchCompleted:
		m.CompletedAt = &t
	case MatchSigned:
		m.ClientSignedAt = &t
	case MatchCancelled:
		m.CancelledAt = &t
	}
	m.UpdatedAt = at
}

// Rating is a requester's score for a signed match.
type Rating struct {
	ID           int64     `db:"id"`
	MatchID      int64     `db:"match_id"`
	ContractorID int64     `db:"contractor_id"`
	RaterID      int64     `db:"rater_id"`
	Score        int       `db:"score"`
	Comment      string    `db:"comment"`
	CreatedAt    time.Time `db:"created_at"`
}
