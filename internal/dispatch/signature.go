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
)

type ContractorSignature struct {
	Signature  string
	FinalPrice *int64
	WorkNotes  *string
}

type ClientSignature struct {
	Signature  string
	SignerName string
}

type OrganizationConfirmation struct {
	Signature  *string
	SignerName *string
}

// terminalConflict maps a match that already left the signing flow to its
// Conflict error.
func terminalConflict(m domain.Match) error {
	switch m.Status {
	case domain.MatchSigned:
		return domain.ErrAlreadySigned
	case domain.MatchCancelled:
		return domain.ErrAlreadyCancelled
	}
	return nil
}

// SignAsContractor records the contractor's endorsement of a completed
// match, optionally revising the final price and work notes.
func (s *Service) SignAsContractor(ctx context.Context, contractorID, jobID int64, in ContractorSignature) (domain.Match, error) {
	if strings.TrimSpace(in.Signature) == "" {
		return domain.Match{}, domain.Invalid("signature is required")
	}
	if in.FinalPrice != nil && *in.FinalPrice < 0 {
		return domain.Match{}, domain.Invalid("final price must not be negative")
	}
	now := s.now()

	var m domain.Match
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockJob(ctx, jobID); err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		var err error
		m, err = tx.LockMatchByJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrMatchNotFound)
		}
		if m.ContractorID != contractorID {
			return domain.ErrNotAllowed
		}
		if err := terminalConflict(m); err != nil {
			return err
		}
		if m.Status != domain.MatchCompleted {
			return domain.ErrInvalidTransition
		}
		if m.ContractorSignature != nil {
			return domain.ErrAlreadySigned
		}

		sig := in.Signature
		at := now
		m.ContractorSignature = &sig
		m.ContractorSignedAt = &at
		if in.FinalPrice != nil {
			price := *in.FinalPrice
			m.FinalPrice = &price
		}
		if in.WorkNotes != nil {
			notes := *in.WorkNotes
			m.WorkNotes = &notes
		}
		m.UpdatedAt = now
		return tx.UpdateMatch(ctx, m, domain.MatchCompleted)
	})
	if errors.Is(err, store.ErrStale) {
		return domain.Match{}, domain.ErrInvalidTransition
	}
	if err != nil {
		return domain.Match{}, err
	}

	s.logger.Info("Contractor signed",
		slog.Int64("job_id", jobID),
		slog.Int64("match_id", m.ID),
	)
	return m, nil
}

// SignAsClient records the on-site client's signature. It needs no
// account. It is the point of irreversible completion: the match becomes
// Signed and the job Completed. Report generation is started after commit.
func (s *Service) SignAsClient(ctx context.Context, jobID int64, in ClientSignature) (domain.Match, error) {
	if strings.TrimSpace(in.Signature) == "" {
		return domain.Match{}, domain.Invalid("signature is required")
	}
	if strings.TrimSpace(in.SignerName) == "" {
		return domain.Match{}, domain.Invalid("signer name is required")
	}
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
		if err := terminalConflict(m); err != nil {
			return err
		}
		if m.ContractorSignature == nil {
			return domain.ErrContractorSignatureRequired
		}

		prev := m.Status
		next, err := domain.NextMatchStatus(prev, domain.ActionClientSign)
		if err != nil {
			return err
		}
		jobNext, err := domain.NextJobStatus(job.Status, domain.ActionClientSign)
		if err != nil {
			return err
		}

		sig := in.Signature
		name := strings.TrimSpace(in.SignerName)
		m.ClientSignature = &sig
		m.ClientName = &name
		m.Status = next
		m.Stamp(next, now)
		if err := tx.UpdateMatch(ctx, m, prev); err != nil {
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

	metrics.TransitionsTotal.WithLabelValues(string(domain.ActionClientSign)).Inc()
	s.logger.Info("Client signed, job completed",
		slog.Int64("job_id", jobID),
		slog.Int64("match_id", m.ID),
	)
	s.notifyContractor(ctx, m, notify.DispatchCompleted, "The client signed off the work")
	s.reports.Trigger(ctx, m.ID)
	return m, nil
}

// ConfirmAsOrganization adds the requester organization's confirmation to a
// signed match. It never changes the match status.
func (s *Service) ConfirmAsOrganization(ctx context.Context, p domain.Principal, jobID int64, in OrganizationConfirmation) (domain.Match, error) {
	now := s.now()

	var m domain.Match
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		if !job.OwnedBy(p) {
			return domain.ErrNotAllowed
		}
		m, err = tx.LockMatchByJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrMatchNotFound)
		}
		if m.Status != domain.MatchSigned {
			return domain.ErrClientSignatureRequired
		}
		if m.OrgConfirmed {
			return domain.ErrAlreadyConfirmed
		}

		at := now
		m.OrgConfirmed = true
		m.OrgConfirmedAt = &at
		if in.Signature != nil {
			sig := *in.Signature
			m.OrgSignature = &sig
		}
		if in.SignerName != nil {
			name := strings.TrimSpace(*in.SignerName)
			m.OrgSignerName = &name
		}
		m.UpdatedAt = now
		return tx.UpdateMatch(ctx, m, domain.MatchSigned)
	})
	if errors.Is(err, store.ErrStale) {
		return domain.Match{}, domain.ErrAlreadyConfirmed
	}
	if err != nil {
		return domain.Match{}, err
	}

	s.logger.Info("Organization confirmed",
		slog.Int64("job_id", jobID),
		slog.Int64("match_id", m.ID),
		slog.Int64("confirmed_by", p.ID),
	)
	return m, nil
}

// Rate stores the requester's score (1..5) for a signed match and folds it
// into the contractor's running average. A match is rated once.
func (s *Service) Rate(ctx context.Context, p domain.Principal, jobID int64, score int, comment string) (domain.Rating, error) {
	if score < 1 || score > 5 {
		return domain.Rating{}, domain.Invalid("score must be between 1 and 5")
	}
	now := s.now()

	var r domain.Rating
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrJobNotFound)
		}
		if !job.OwnedBy(p) {
			return domain.ErrNotAllowed
		}
		m, err := tx.GetMatchByJob(ctx, jobID)
		if err != nil {
			return orNotFound(err, domain.ErrMatchNotFound)
		}
		if m.Status != domain.MatchSigned {
			return domain.ErrClientSignatureRequired
		}

		c, err := tx.LockContractor(ctx, m.ContractorID)
		if err != nil {
			return orNotFound(err, domain.ErrContractorNotFound)
		}

		r, err = tx.CreateRating(ctx, domain.Rating{
			MatchID:      m.ID,
			ContractorID: c.ID,
			RaterID:      p.ID,
			Score:        score,
			Comment:      strings.TrimSpace(comment),
			CreatedAt:    now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ErrAlreadyRated
		}
		if err != nil {
			return err
		}

		c.Rating = (c.Rating*float64(c.RatingCount) + float64(score)) / float64(c.RatingCount+1)
		c.RatingCount++
		c.UpdatedAt = now
		return tx.UpdateContractor(ctx, c)
	})
	if err != nil {
		return domain.Rating{}, err
	}

	s.logger.Info("Match rated",
		slog.Int64("job_id", jobID),
		slog.Int64("contractor_id", r.ContractorID),
		slog.Int("score", score),
	)
	return r, nil
}
