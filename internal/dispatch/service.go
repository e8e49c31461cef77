// Package dispatch owns the job fulfillment flow: creation, exposure-gated
// acceptance, the match progress state machine, sign-off and cancellation.
// Every transition is one store transaction scoped to a (job, match) pair;
// notifications, reports and violations run after commit.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/exposure"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/violation"
)

// ViolationRecorder is satisfied by *violation.Escalator.
type ViolationRecorder interface {
	Record(ctx context.Context, in violation.Input) (violation.Outcome, error)
}

// ReportTrigger starts report generation for a signed match. It must not
// block on the generator.
type ReportTrigger interface {
	Trigger(ctx context.Context, matchID int64)
}

type noReports struct{}

func (noReports) Trigger(context.Context, int64) {}

type Service struct {
	store      store.Store
	exposure   *exposure.Scheduler
	settings   exposure.SettingsReader
	notifier   notify.Publisher
	violations ViolationRecorder
	reports    ReportTrigger
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Publisher) Option {
	return func(s *Service) { s.notifier = n }
}

func WithViolations(v ViolationRecorder) Option {
	return func(s *Service) { s.violations = v }
}

func WithReports(r ReportTrigger) Option {
	return func(s *Service) { s.reports = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, sr exposure.SettingsReader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		exposure: exposure.NewScheduler(sr),
		settings: sr,
		notifier: notify.Discard{},
		reports:  noReports{},
		logger:   logger.With("component", "dispatch"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) values() settings.Values {
	if s.settings == nil {
		return settings.Defaults()
	}
	return s.settings.Current()
}

// orNotFound swaps store.ErrNotFound for the domain error of the entity.
func orNotFound(err error, target *domain.Error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}

// raceLost reports whether err means a concurrent writer got there first.
func raceLost(err error) bool {
	return errors.Is(err, store.ErrLockConflict) ||
		errors.Is(err, store.ErrDuplicate) ||
		errors.Is(err, store.ErrStale)
}

// outcome labels a result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}
