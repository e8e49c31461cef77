package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/store"
)

// tx mutates the live state directly; WithTx restores the snapshot when
// the callback fails.
type tx struct {
	st *state
}

func (t *tx) GetJob(_ context.Context, id int64) (domain.Job, error) { return t.st.getJob(id) }

func (t *tx) GetMatch(_ context.Context, id int64) (domain.Match, error) { return t.st.getMatch(id) }

func (t *tx) GetMatchByJob(_ context.Context, jobID int64) (domain.Match, error) {
	return t.st.getMatchByJob(jobID)
}

func (t *tx) GetContractor(_ context.Context, id int64) (domain.Contractor, error) {
	return t.st.getContractor(id)
}

func (t *tx) GetOrganization(_ context.Context, id int64) (domain.Organization, error) {
	return t.st.getOrganization(id)
}

func (t *tx) ListEquipment(_ context.Context, contractorID int64) ([]domain.Equipment, error) {
	return t.st.listEquipment(contractorID), nil
}

func (t *tx) GetSuspension(_ context.Context, id int64) (domain.Suspension, error) {
	return t.st.getSuspension(id)
}

func (t *tx) ActiveSuspension(_ context.Context, actor domain.Actor, now time.Time) (domain.Suspension, error) {
	return t.st.activeSuspension(actor, now)
}

func (t *tx) CreateJob(_ context.Context, job domain.Job) (domain.Job, error) {
	job.ID = t.st.nextID()
	t.st.jobs[job.ID] = job
	return job, nil
}

func (t *tx) LockJob(_ context.Context, id int64) (domain.Job, error) { return t.st.getJob(id) }

func (t *tx) UpdateJobStatus(_ context.Context, id int64, from, to domain.JobStatus, at time.Time) error {
	j, ok := t.st.jobs[id]
	if !ok || j.Status != from {
		return store.ErrStale
	}
	j.Status = to
	j.UpdatedAt = at
	t.st.jobs[id] = j
	return nil
}

func (t *tx) CreateMatch(_ context.Context, m domain.Match) (domain.Match, error) {
	for _, existing := range t.st.matches {
		if existing.JobID == m.JobID && existing.Status != domain.MatchCancelled {
			return domain.Match{}, fmt.Errorf("live match for job %d: %w", m.JobID, store.ErrDuplicate)
		}
	}
	m.ID = t.st.nextID()
	m.UpdatedAt = m.MatchedAt
	t.st.matches[m.ID] = m
	return m, nil
}

func (t *tx) LockMatchByJob(_ context.Context, jobID int64) (domain.Match, error) {
	return t.st.getMatchByJob(jobID)
}

func (t *tx) UpdateMatch(_ context.Context, m domain.Match, expected domain.MatchStatus) error {
	stored, ok := t.st.matches[m.ID]
	if !ok || stored.Status != expected {
		return fmt.Errorf("match %d is no longer %s: %w", m.ID, expected, store.ErrStale)
	}
	// report_url is owned by SetReportURL.
	m.ReportURL = stored.ReportURL
	t.st.matches[m.ID] = m
	return nil
}

func (t *tx) CreateContractor(_ context.Context, c domain.Contractor) (domain.Contractor, error) {
	for _, existing := range t.st.contractors {
		if existing.BusinessRegistrationNumber == c.BusinessRegistrationNumber {
			return domain.Contractor{}, fmt.Errorf("business registration %s: %w", c.BusinessRegistrationNumber, store.ErrDuplicate)
		}
	}
	c.ID = t.st.nextID()
	c.UpdatedAt = c.CreatedAt
	t.st.contractors[c.ID] = c
	return c, nil
}

func (t *tx) LockContractor(_ context.Context, id int64) (domain.Contractor, error) {
	return t.st.getContractor(id)
}

func (t *tx) UpdateContractor(_ context.Context, c domain.Contractor) error {
	stored, ok := t.st.contractors[c.ID]
	if !ok {
		return store.ErrStale
	}
	c.WarningCount = stored.WarningCount
	c.BusinessRegistrationNumber = stored.BusinessRegistrationNumber
	c.LicenseNumber = stored.LicenseNumber
	c.CreatedAt = stored.CreatedAt
	t.st.contractors[c.ID] = c
	return nil
}

func (t *tx) CreateEquipment(_ context.Context, e domain.Equipment) (domain.Equipment, error) {
	if _, ok := t.st.contractors[e.ContractorID]; !ok {
		return domain.Equipment{}, fmt.Errorf("contractor %d: %w", e.ContractorID, store.ErrNotFound)
	}
	e.ID = t.st.nextID()
	t.st.equipment[e.ID] = e
	return e, nil
}

func (t *tx) UpdateEquipmentStatus(_ context.Context, contractorID, equipmentID int64, status domain.EquipmentStatus) (domain.Equipment, error) {
	e, ok := t.st.equipment[equipmentID]
	if !ok || e.ContractorID != contractorID {
		return domain.Equipment{}, fmt.Errorf("equipment %d: %w", equipmentID, store.ErrNotFound)
	}
	e.Status = status
	t.st.equipment[equipmentID] = e
	return e, nil
}

func (t *tx) CreateGradeHistory(_ context.Context, h domain.GradeHistory) (domain.GradeHistory, error) {
	h.ID = t.st.nextID()
	t.st.grades[h.ID] = h
	return h, nil
}

func (t *tx) CreateRating(_ context.Context, r domain.Rating) (domain.Rating, error) {
	for _, existing := range t.st.ratings {
		if existing.MatchID == r.MatchID {
			return domain.Rating{}, fmt.Errorf("rating for match %d: %w", r.MatchID, store.ErrDuplicate)
		}
	}
	r.ID = t.st.nextID()
	t.st.ratings[r.ID] = r
	return r, nil
}

func (t *tx) IncrementWarnings(_ context.Context, actor domain.Actor) (int, error) {
	switch actor.Type {
	case domain.ActorContractor:
		c, ok := t.st.contractors[actor.ID]
		if !ok {
			return 0, fmt.Errorf("contractor %d: %w", actor.ID, store.ErrNotFound)
		}
		c.WarningCount++
		t.st.contractors[actor.ID] = c
		return c.WarningCount, nil
	case domain.ActorOrganization:
		o, ok := t.st.organizations[actor.ID]
		if !ok {
			return 0, fmt.Errorf("organization %d: %w", actor.ID, store.ErrNotFound)
		}
		o.WarningCount++
		t.st.organizations[actor.ID] = o
		return o.WarningCount, nil
	default:
		return 0, fmt.Errorf("unknown actor type %q", actor.Type)
	}
}

func (t *tx) CreateViolation(_ context.Context, v domain.Violation) (domain.Violation, error) {
	v.ID = t.st.nextID()
	t.st.violations[v.ID] = v
	return v, nil
}

func (t *tx) CreateSuspension(_ context.Context, s domain.Suspension) (domain.Suspension, error) {
	for id, existing := range t.st.suspensions {
		if existing.Actor() != s.Actor() || !existing.Active {
			continue
		}
		if due(existing, s.StartAt) {
			at := s.StartAt
			existing.Active = false
			existing.LiftedAt = &at
			t.st.suspensions[id] = existing
			continue
		}
		return domain.Suspension{}, fmt.Errorf("suspension for %s: %w", s.Actor(), store.ErrDuplicate)
	}

	s.ID = t.st.nextID()
	s.Active = true
	s.LiftedBy = nil
	s.LiftedAt = nil
	t.st.suspensions[s.ID] = s
	return s, nil
}

func (t *tx) LiftSuspension(_ context.Context, id, liftedBy int64, at time.Time) (bool, error) {
	s, ok := t.st.suspensions[id]
	if !ok || !s.Active {
		return false, nil
	}
	by, when := liftedBy, at
	s.Active = false
	s.LiftedBy = &by
	s.LiftedAt = &when
	t.st.suspensions[id] = s
	return true, nil
}
