package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/violation"
)

func (s *Service) Depart(ctx context.Context, contractorID, jobID int64) (domain.Match, error) {
	return s.advance(ctx, contractorID, jobID, domain.ActionDepart)
}

// Arrive also moves the job to InProgress and tells the requester.
func (s *Service) Arrive(ctx context.Context, contractorID, jobID int64) (domain.Match, error) {
	m, err := s.advance(ctx, contractorID, jobID, domain.ActionArrive)
	if err != nil {
		return domain.Match{}, err
	}
	s.notifyRequester(ctx, jobID, m, notify.DispatchArrived, "The contractor has arrived on site")
	return m, nil
}

func (s *Service) StartWork(ctx context.Context, contractorID, jobID int64) (domain.Match, error) {
	return s.advance(ctx, contractorID, jobID, domain.ActionStartWork)
}

// Complete ends the work. The job stays InProgress until the client signs.
func (s *Service) Complete(ctx context.Context, contractorID, jobID int64) (domain.Match, error) {
	m, err := s.advance(ctx, contractorID, jobID, domain.ActionComplete)
	if err != nil {
		return domain.Match{}, err
	}
	s.notifyRequester(ctx, jobID, m, notify.DispatchCompleted, "Work is complete and awaiting signatures")
	return m, nil
}

// advance applies one contractor-driven progress transition. A caller that
// is not the matched contractor, or a match not in the expected state, gets
// ErrInvalidTransition and the match is left untouched.
func (s *Service) advance(ctx context.Context, contractorID, jobID int64, action domain.Action) (domain.Match, error) {
	now := s.now()

	var m domain.Match
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		m, err = tx.LockMatchByJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrMatchNotFound)
		}
		if m.ContractorID != contractorID {
			return domain.ErrInvalidTransition
		}

		prev := m.Status
		next, err := domain.NextMatchStatus(prev, action)
		if err != nil {
			return err
		}
		m.Status = next
		m.Stamp(next, now)
		if err := tx.UpdateMatch(ctx, m, prev); err != nil {
			return err
		}

		if !domain.AffectsJob(action) {
			return nil
		}
		jobNext, err := domain.NextJobStatus(job.Status, action)
		if err != nil {
			return err
		}
		return tx.UpdateJobStatus(ctx, job.ID, job.Status, jobNext, now)
	})
	if errors.Is(err, store.ErrStale) {
		return domain.Match{}, domain.ErrInvalidTransition
	}
	if err != nil {
		return domain.Match{}, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("Match advanced",
		slog.Int64("job_id", jobID),
		slog.Int64("match_id", m.ID),
		slog.String("action", string(action)),
		slog.String("status", string(m.Status)),
	)
	return m, nil
}

// CancelInput describes a cancellation. NoShow flags the matched contractor
// for not turning up and is only accepted before arrival.
type CancelInput struct {
	Reason string
	NoShow bool
}

// Cancel moves the job, and its live match if any, to Cancelled. Only the
// requester side or an admin may cancel, and never a completed job.
func (s *Service) Cancel(ctx context.Context, p domain.Principal, jobID int64, in CancelInput) (domain.Job, error) {
	now := s.now()
	reason := strings.TrimSpace(in.Reason)

	var (
		job     domain.Job
		m       domain.Match
		matched bool
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		job, err = tx.LockJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		if !job.OwnedBy(p) {
			return domain.ErrNotAllowed
		}

		switch job.Status {
		case domain.JobCompleted:
			return domain.ErrJobCompleted
		case domain.JobCancelled:
			return domain.ErrAlreadyCancelled
		}

		jobNext, err := domain.NextJobStatus(job.Status, domain.ActionCancel)
		if err != nil {
			return err
		}

		if job.Status != domain.JobOpen {
			m, err = tx.LockMatchByJob(ctx, jobID)
			if err != nil {
				return orNotFound(err, domain.ErrMatchNotFound)
			}
			if in.NoShow && m.Status != domain.MatchAccepted && m.Status != domain.MatchEnRoute {
				return domain.Invalid("no-show can only be reported before the contractor arrives")
			}

			prev := m.Status
			next, err := domain.NextMatchStatus(prev, domain.ActionCancel)
			if err != nil {
				return err
			}
			by := p.ID
			m.Status = next
			m.Stamp(next, now)
			m.CancelledBy = &by
			if reason != "" {
				m.CancelReason = &reason
			}
			if err := tx.UpdateMatch(ctx, m, prev); err != nil {
				return err
			}
			matched = true
		} else if in.NoShow {
			return domain.Invalid("no-show needs a matched contractor")
		}

		if err := tx.UpdateJobStatus(ctx, job.ID, job.Status, jobNext, now); err != nil {
			return err
		}
		job.Status = jobNext
		job.UpdatedAt = now
		return nil
	})
	if errors.Is(err, store.ErrStale) {
		return domain.Job{}, domain.ErrInvalidTransition
	}
	if err != nil {
		return domain.Job{}, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(domain.ActionCancel)).Inc()
	s.logger.Info("Job cancelled",
		slog.Int64("job_id", jobID),
		slog.Int64("cancelled_by", p.ID),
		slog.Bool("no_show", in.NoShow),
	)

	if matched {
		s.notifyContractor(ctx, m, notify.DispatchCancelled, "The dispatch was cancelled")
		if in.NoShow {
			s.recordNoShow(ctx, p, m, reason)
		}
	}
	return job, nil
}

// recordNoShow runs after commit; a failure is logged and never undoes the
// cancellation.
func (s *Service) recordNoShow(ctx context.Context, p domain.Principal, m domain.Match, reason string) {
	if s.violations == nil {
		s.logger.Warn("No-show not recorded, no violation recorder configured", slog.Int64("job_id", m.JobID))
		return
	}
	if reason == "" {
		reason = "contractor did not show up"
	}
	jobID := m.JobID
	_, err := s.violations.Record(ctx, violation.Input{
		Actor:    domain.Actor{Type: domain.ActorContractor, ID: m.ContractorID},
		Category: domain.WarningNoShow,
		Reason:   reason,
		JobID:    &jobID,
		IssuedBy: p.ID,
	})
	if err != nil {
		s.logger.Error("Failed to record no-show",
			slog.Int64("job_id", m.JobID),
			slog.Int64("contractor_id", m.ContractorID),
			slog.Any("error", err),
		)
	}
}
