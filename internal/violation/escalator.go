// Package violation records warnings against contractors and organizations
// and turns accumulated warnings into automatic suspensions.
package violation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
)

// SettingsReader yields the current runtime settings.
type SettingsReader interface {
	Current() settings.Values
}

// Input describes one violation to record.
type Input struct {
	Actor    domain.Actor
	Category domain.WarningType
	Reason   string
	JobID    *int64
	IssuedBy int64
}

// Outcome is the result of Record. Suspension is set only when this call
// imposed one.
type Outcome struct {
	Violation    domain.Violation
	WarningCount int
	Suspension   *domain.Suspension
}

// SuspendInput describes a manual suspension. A temporary suspension needs
// either EndAt or a positive Days.
type SuspendInput struct {
	Actor  domain.Actor
	Kind   domain.SuspensionKind
	Reason string
	EndAt  *time.Time
	Days   int
}

type Escalator struct {
	store    store.Store
	settings SettingsReader
	logger   *slog.Logger
	now      func() time.Time
}

func NewEscalator(st store.Store, s SettingsReader, logger *slog.Logger) *Escalator {
	return &Escalator{
		store:    st,
		settings: s,
		logger:   logger.With("component", "violation_escalator"),
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (e *Escalator) WithClock(now func() time.Time) *Escalator {
	e.now = now
	return e
}

func (e *Escalator) values() settings.Values {
	if e.settings == nil {
		return settings.Defaults()
	}
	return e.settings.Current()
}

// Issue records a violation on behalf of an administrator.
func (e *Escalator) Issue(ctx context.Context, p domain.Principal, in Input) (Outcome, error) {
	if !p.IsAdmin() {
		return Outcome{}, domain.ErrNotAllowed
	}
	in.IssuedBy = p.ID
	return e.Record(ctx, in)
}

// Record appends a violation, bumps the actor's warning counter and, when a
// threshold is reached, imposes a temporary suspension unless one is
// already active. All of it commits or none of it does.
func (e *Escalator) Record(ctx context.Context, in Input) (Outcome, error) {
	if err := in.Actor.Validate(); err != nil {
		return Outcome{}, err
	}
	if !in.Category.Valid() {
		return Outcome{}, domain.Invalid("unknown violation category %q", in.Category)
	}
	in.Reason = strings.TrimSpace(in.Reason)

	now := e.now()
	v := e.values()

	var out Outcome
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		count, err := tx.IncrementWarnings(ctx, in.Actor)
		if err != nil {
			return actorNotFound(in.Actor, err)
		}
		out.WarningCount = count

		out.Violation, err = tx.CreateViolation(ctx, domain.Violation{
			ActorType: in.Actor.Type,
			ActorID:   in.Actor.ID,
			Category:  in.Category,
			Reason:    in.Reason,
			JobID:     in.JobID,
			IssuedBy:  in.IssuedBy,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		days := SuspensionDays(count, v)
		if days == 0 {
			return nil
		}

		if _, err := tx.ActiveSuspension(ctx, in.Actor, now); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		end := now.AddDate(0, 0, days)
		s, err := tx.CreateSuspension(ctx, domain.Suspension{
			ActorType: in.Actor.Type,
			ActorID:   in.Actor.ID,
			Kind:      domain.SuspensionTemporary,
			Reason:    fmt.Sprintf("automatic suspension after %d warnings", count),
			StartAt:   now,
			EndAt:     &end,
			Automatic: true,
			IssuedBy:  in.IssuedBy,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Suspension = &s
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	e.logger.Info("Violation recorded",
		slog.String("actor", in.Actor.String()),
		slog.String("category", string(in.Category)),
		slog.Int("warning_count", out.WarningCount),
	)
	if out.Suspension != nil {
		metrics.SuspensionsImposed.WithLabelValues(string(in.Actor.Type), "automatic").Inc()
		e.logger.Warn("Actor suspended automatically",
			slog.String("actor", in.Actor.String()),
			slog.Int64("suspension_id", out.Suspension.ID),
			slog.Time("end_at", *out.Suspension.EndAt),
		)
	}
	return out, nil
}

// SuspensionDays returns the suspension length triggered by count warnings,
// or 0 when no threshold is reached.
func SuspensionDays(count int, v settings.Values) int {
	switch {
	case count >= v.WarningThreshold2:
		return v.SuspensionDays2
	case count >= v.WarningThreshold1:
		return v.SuspensionDays1
	default:
		return 0
	}
}

// Suspend imposes a manual suspension.
func (e *Escalator) Suspend(ctx context.Context, p domain.Principal, in SuspendInput) (domain.Suspension, error) {
	if !p.IsAdmin() {
		return domain.Suspension{}, domain.ErrNotAllowed
	}
	if err := in.Actor.Validate(); err != nil {
		return domain.Suspension{}, err
	}

	now := e.now()
	s := domain.Suspension{
		ActorType: in.Actor.Type,
		ActorID:   in.Actor.ID,
		Kind:      in.Kind,
		Reason:    strings.TrimSpace(in.Reason),
		StartAt:   now,
		IssuedBy:  p.ID,
		CreatedAt: now,
	}

	switch in.Kind {
	case domain.SuspensionTemporary:
		switch {
		case in.EndAt != nil:
			if !in.EndAt.After(now) {
				return domain.Suspension{}, domain.Invalid("end time must be in the future")
			}
			end := *in.EndAt
			s.EndAt = &end
		case in.Days > 0:
			end := now.AddDate(0, 0, in.Days)
			s.EndAt = &end
		default:
			return domain.Suspension{}, domain.Invalid("temporary suspension needs an end time or a day count")
		}
	case domain.SuspensionPermanent:
	default:
		return domain.Suspension{}, domain.Invalid("unknown suspension kind %q", in.Kind)
	}

	var out domain.Suspension
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := actorExists(ctx, tx, in.Actor); err != nil {
			return err
		}

		if _, err := tx.ActiveSuspension(ctx, in.Actor, now); err == nil {
			return domain.ErrAlreadySuspended
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var err error
		out, err = tx.CreateSuspension(ctx, s)
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ErrAlreadySuspended
		}
		return err
	})
	if err != nil {
		return domain.Suspension{}, err
	}

	metrics.SuspensionsImposed.WithLabelValues(string(in.Actor.Type), "manual").Inc()
	e.logger.Info("Actor suspended",
		slog.String("actor", in.Actor.String()),
		slog.String("kind", string(in.Kind)),
		slog.Int64("issued_by", p.ID),
	)
	return out, nil
}

// Lift deactivates an active suspension.
func (e *Escalator) Lift(ctx context.Context, p domain.Principal, id int64) (domain.Suspension, error) {
	if !p.IsAdmin() {
		return domain.Suspension{}, domain.ErrNotAllowed
	}

	now := e.now()
	var out domain.Suspension
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSuspension(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrSuspensionNotFound
			}
			return err
		}

		flipped, err := tx.LiftSuspension(ctx, id, p.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrAlreadyLifted
		}

		out, err = tx.GetSuspension(ctx, id)
		return err
	})
	if err != nil {
		return domain.Suspension{}, err
	}

	e.logger.Info("Suspension lifted",
		slog.Int64("suspension_id", id),
		slog.String("actor", out.Actor().String()),
		slog.Int64("lifted_by", p.ID),
	)
	return out, nil
}

func (e *Escalator) ListSuspensions(ctx context.Context, q store.SuspensionQuery) ([]domain.Suspension, error) {
	if q.Actor != nil {
		if err := q.Actor.Validate(); err != nil {
			return nil, err
		}
	}
	return e.store.ListSuspensions(ctx, q)
}

func (e *Escalator) ListViolations(ctx context.Context, q store.ViolationQuery) ([]domain.Violation, error) {
	if q.Actor != nil {
		if err := q.Actor.Validate(); err != nil {
			return nil, err
		}
	}
	return e.store.ListViolations(ctx, q)
}

// ExpireDue deactivates temporary suspensions whose end time has passed.
// Each row is flipped with its own conditional update, so concurrent
// sweepers and manual lifts never double-process a row.
func (e *Escalator) ExpireDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	now := e.now()

	due, err := e.store.ListExpiredSuspensions(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, s := range due {
		flipped, err := e.store.ExpireSuspension(ctx, s.ID, now)
		if err != nil {
			e.logger.Error("Failed to expire suspension",
				slog.Int64("suspension_id", s.ID),
				slog.Any("error", err),
			)
			continue
		}
		if !flipped {
			continue
		}
		expired++
		metrics.SuspensionsExpired.Inc()
		e.logger.Info("Suspension expired",
			slog.Int64("suspension_id", s.ID),
			slog.String("actor", s.Actor().String()),
		)
	}
	return expired, nil
}

func actorExists(ctx context.Context, r store.Reader, a domain.Actor) error {
	var err error
	switch a.Type {
	case domain.ActorContractor:
		_, err = r.GetContractor(ctx, a.ID)
	case domain.ActorOrganization:
		_, err = r.GetOrganization(ctx, a.ID)
	default:
		return domain.Invalid("unknown actor type %q", a.Type)
	}
	return actorNotFound(a, err)
}

func actorNotFound(a domain.Actor, err error) error {
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return err
	}
	switch a.Type {
	case domain.ActorContractor:
		return domain.ErrContractorNotFound
	case domain.ActorOrganization:
		return domain.ErrOrganizationNotFound
	default:
		return err
	}
}
