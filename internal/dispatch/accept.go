package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/store"
)

// Accept binds an open job to the contractor. When equipmentID is nil the
// first active compatible unit is used.
//
// Checks run in order, each with its own error: verified contractor, no
// active suspension, job exists, job open, exposure window open for the
// contractor's grade, compatible equipment. The job row lock serializes
// racing accepts; the loser sees a non-open job, or a lock/uniqueness
// failure, and gets Conflict(AlreadyMatched) either way.
func (s *Service) Accept(ctx context.Context, contractorID, jobID int64, equipmentID *int64) (domain.Match, error) {
	m, err := s.accept(ctx, contractorID, jobID, equipmentID)
	metrics.AcceptTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		s.logger.Info("Accept rejected",
			slog.Int64("job_id", jobID),
			slog.Int64("contractor_id", contractorID),
			slog.String("code", domain.CodeOf(err)),
		)
		return domain.Match{}, err
	}

	s.logger.Info("Job matched",
		slog.Int64("job_id", jobID),
		slog.Int64("match_id", m.ID),
		slog.Int64("contractor_id", contractorID),
		slog.Int64("equipment_id", m.EquipmentID),
	)
	metrics.TransitionsTotal.WithLabelValues(string(domain.ActionAccept)).Inc()
	s.notifyRequester(ctx, jobID, m, notify.DispatchAccepted, "Your dispatch was accepted")
	return m, nil
}

func (s *Service) accept(ctx context.Context, contractorID, jobID int64, equipmentID *int64) (domain.Match, error) {
	now := s.now()

	var m domain.Match
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContractor(ctx, contractorID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrNotVerified
		}
		if err != nil {
			return err
		}
		if !c.Verified() {
			return domain.ErrNotVerified
		}

		if _, err := tx.ActiveSuspension(ctx, c.Actor(), now); err == nil {
			return domain.ErrSuspended
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		next, err := domain.NextJobStatus(job.Status, domain.ActionAccept)
		if err != nil {
			return domain.ErrAlreadyMatched
		}
		if !s.exposure.IsVisible(job, c, now) {
			return domain.ErrJobNotFound
		}

		units, err := tx.ListEquipment(ctx, c.ID)
		if err != nil {
			return err
		}
		unit, err := pickEquipment(units, job, equipmentID)
		if err != nil {
			return err
		}

		m, err = tx.CreateMatch(ctx, domain.Match{
			JobID:        job.ID,
			ContractorID: c.ID,
			EquipmentID:  unit.ID,
			Status:       domain.MatchAccepted,
			FinalPrice:   job.Price,
			MatchedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		return tx.UpdateJobStatus(ctx, job.ID, job.Status, next, now)
	})
	if raceLost(err) {
		return domain.Match{}, domain.ErrAlreadyMatched
	}
	return m, err
}

func pickEquipment(units []domain.Equipment, job domain.Job, want *int64) (domain.Equipment, error) {
	if want != nil {
		for _, u := range units {
			if u.ID != *want {
				continue
			}
			if !u.Serves(job) {
				return domain.Equipment{}, domain.ErrNoMatchingEquipment
			}
			return u, nil
		}
		return domain.Equipment{}, domain.ErrEquipmentNotFound
	}

	for _, u := range units {
		if u.Serves(job) {
			return u, nil
		}
	}
	return domain.Equipment{}, domain.ErrNoMatchingEquipment
}

func (s *Service) notifyRequester(ctx context.Context, jobID int64, m domain.Match, t notify.Type, title string) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn("Skipping notification, job lookup failed",
			slog.Int64("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}
	s.notifier.Publish(ctx, notify.NewEvent(t, notify.ToRequester, job.RequesterID, title).
		ForJob(jobID, m.ID).
		With("match_status", string(m.Status)))
}

func (s *Service) notifyContractor(ctx context.Context, m domain.Match, t notify.Type, title string) {
	s.notifier.Publish(ctx, notify.NewEvent(t, notify.ToContractor, m.ContractorID, title).
		ForJob(m.JobID, m.ID).
		With("match_status", string(m.Status)))
}
