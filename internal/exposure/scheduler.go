// Package exposure decides when an open job becomes visible to a
// contractor of a given grade.
package exposure

import (
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/settings"
)

// SettingsReader yields the current runtime settings.
type SettingsReader interface {
	Current() settings.Values
}

// Scheduler is a pure read-time filter; it never mutates jobs or contractors.
type Scheduler struct {
	settings SettingsReader
}

func NewScheduler(s SettingsReader) *Scheduler {
	return &Scheduler{settings: s}
}

// Delay returns how long after creation job stays hidden from grade.
// Unknown grades are treated as the lowest tier, and the third tier never
// opens before the second.
func (s *Scheduler) Delay(job domain.Job, grade int) time.Duration {
	v := s.values()

	if job.Urgent {
		return nonNegative(v.UrgentDelay)
	}

	d2 := nonNegative(v.Grade2Delay)
	d3 := nonNegative(v.Grade3Delay)
	if d3 < d2 {
		d3 = d2
	}

	switch grade {
	case domain.GradeFirst:
		return 0
	case domain.GradeSecond:
		return d2
	default:
		return d3
	}
}

// ReleaseAt is the first instant at which grade may see job.
func (s *Scheduler) ReleaseAt(job domain.Job, grade int) time.Time {
	return job.CreatedAt.Add(s.Delay(job, grade))
}

// Cutoffs returns the latest creation times at which a regular and an urgent
// job are already released to grade at now.
func (s *Scheduler) Cutoffs(grade int, now time.Time) (regular, urgent time.Time) {
	regular = now.Add(-s.Delay(domain.Job{}, grade))
	urgent = now.Add(-s.Delay(domain.Job{Urgent: true}, grade))
	return regular, urgent
}

// Released reports whether the exposure window for c's grade has opened.
func (s *Scheduler) Released(job domain.Job, c domain.Contractor, now time.Time) bool {
	return !now.Before(s.ReleaseAt(job, c.Grade))
}

// IsVisible reports whether c may see job in the open listing at now.
func (s *Scheduler) IsVisible(job domain.Job, c domain.Contractor, now time.Time) bool {
	if job.Status != domain.JobOpen {
		return false
	}
	if job.MinRating != nil && c.Rating < *job.MinRating {
		return false
	}
	return s.Released(job, c, now)
}

// Filter keeps the jobs visible to c at now, preserving order.
func (s *Scheduler) Filter(jobs []domain.Job, c domain.Contractor, now time.Time) []domain.Job {
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		if s.IsVisible(j, c, now) {
			out = append(out, j)
		}
	}
	return out
}

// values fails open: without a settings reader every delay is zero.
func (s *Scheduler) values() settings.Values {
	if s == nil || s.settings == nil {
		return settings.Values{}
	}
	return s.settings.Current()
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
