// Package memory is an in-process store.Store for local runs and tests.
// Transactions are serialized by a single lock and roll back by restoring
// a snapshot, so it is only suitable for one process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/store"
)

type state struct {
	seq           int64
	jobs          map[int64]domain.Job
	matches       map[int64]domain.Match
	contractors   map[int64]domain.Contractor
	organizations map[int64]domain.Organization
	equipment     map[int64]domain.Equipment
	violations    map[int64]domain.Violation
	suspensions   map[int64]domain.Suspension
	grades        map[int64]domain.GradeHistory
	ratings       map[int64]domain.Rating
	settings      map[string]string
}

func newState() *state {
	return &state{
		jobs:          map[int64]domain.Job{},
		matches:       map[int64]domain.Match{},
		contractors:   map[int64]domain.Contractor{},
		organizations: map[int64]domain.Organization{},
		equipment:     map[int64]domain.Equipment{},
		violations:    map[int64]domain.Violation{},
		suspensions:   map[int64]domain.Suspension{},
		grades:        map[int64]domain.GradeHistory{},
		ratings:       map[int64]domain.Rating{},
		settings:      map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{seq: s.seq}
	c.jobs = cloneMap(s.jobs)
	c.matches = cloneMap(s.matches)
	c.contractors = cloneMap(s.contractors)
	c.organizations = cloneMap(s.organizations)
	c.equipment = cloneMap(s.equipment)
	c.violations = cloneMap(s.violations)
	c.suspensions = cloneMap(s.suspensions)
	c.grades = cloneMap(s.grades)
	c.ratings = cloneMap(s.ratings)
	c.settings = cloneMap(s.settings)
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

// Store is the in-memory store.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// view runs fn under the lock for non-transactional calls.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// AddOrganization seeds an organization. Organizations have no create
// operation of their own.
func (s *Store) AddOrganization(name string) domain.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := domain.Organization{ID: s.st.nextID(), Name: name, CreatedAt: time.Now()}
	s.st.organizations[o.ID] = o
	return o
}

// reads shared by Store and tx

func (st *state) getJob(id int64) (domain.Job, error) {
	j, ok := st.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	return j, nil
}

func (st *state) getMatch(id int64) (domain.Match, error) {
	m, ok := st.matches[id]
	if !ok {
		return domain.Match{}, fmt.Errorf("match %d: %w", id, store.ErrNotFound)
	}
	return m, nil
}

func (st *state) getMatchByJob(jobID int64) (domain.Match, error) {
	var best domain.Match
	found := false
	for _, m := range st.matches {
		if m.JobID != jobID {
			continue
		}
		if !found || better(m, best) {
			best, found = m, true
		}
	}
	if !found {
		return domain.Match{}, fmt.Errorf("match for job %d: %w", jobID, store.ErrNotFound)
	}
	return best, nil
}

// better prefers a live match, then the most recent one.
func better(a, b domain.Match) bool {
	aLive, bLive := a.Status != domain.MatchCancelled, b.Status != domain.MatchCancelled
	if aLive != bLive {
		return aLive
	}
	return a.ID > b.ID
}

func (st *state) getContractor(id int64) (domain.Contractor, error) {
	c, ok := st.contractors[id]
	if !ok {
		return domain.Contractor{}, fmt.Errorf("contractor %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (st *state) getOrganization(id int64) (domain.Organization, error) {
	o, ok := st.organizations[id]
	if !ok {
		return domain.Organization{}, fmt.Errorf("organization %d: %w", id, store.ErrNotFound)
	}
	return o, nil
}

func (st *state) listEquipment(contractorID int64) []domain.Equipment {
	var out []domain.Equipment
	for _, e := range st.equipment {
		if e.ContractorID == contractorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) getSuspension(id int64) (domain.Suspension, error) {
	s, ok := st.suspensions[id]
	if !ok {
		return domain.Suspension{}, fmt.Errorf("suspension %d: %w", id, store.ErrNotFound)
	}
	return s, nil
}

func (st *state) activeSuspension(actor domain.Actor, now time.Time) (domain.Suspension, error) {
	var best domain.Suspension
	found := false
	for _, s := range st.suspensions {
		if s.Actor() != actor || !s.InEffect(now) {
			continue
		}
		if !found || s.ID > best.ID {
			best, found = s, true
		}
	}
	if !found {
		return domain.Suspension{}, fmt.Errorf("active suspension for %s: %w", actor, store.ErrNotFound)
	}
	return best, nil
}

func (s *Store) GetJob(_ context.Context, id int64) (j domain.Job, err error) {
	err = s.view(func(st *state) error { j, err = st.getJob(id); return err })
	return j, err
}

func (s *Store) GetMatch(_ context.Context, id int64) (m domain.Match, err error) {
	err = s.view(func(st *state) error { m, err = st.getMatch(id); return err })
	return m, err
}

func (s *Store) GetMatchByJob(_ context.Context, jobID int64) (m domain.Match, err error) {
	err = s.view(func(st *state) error { m, err = st.getMatchByJob(jobID); return err })
	return m, err
}

func (s *Store) GetContractor(_ context.Context, id int64) (c domain.Contractor, err error) {
	err = s.view(func(st *state) error { c, err = st.getContractor(id); return err })
	return c, err
}

func (s *Store) GetOrganization(_ context.Context, id int64) (o domain.Organization, err error) {
	err = s.view(func(st *state) error { o, err = st.getOrganization(id); return err })
	return o, err
}

func (s *Store) ListEquipment(_ context.Context, contractorID int64) (out []domain.Equipment, err error) {
	err = s.view(func(st *state) error { out = st.listEquipment(contractorID); return nil })
	return out, err
}

func (s *Store) GetSuspension(_ context.Context, id int64) (out domain.Suspension, err error) {
	err = s.view(func(st *state) error { out, err = st.getSuspension(id); return err })
	return out, err
}

func (s *Store) ActiveSuspension(_ context.Context, actor domain.Actor, now time.Time) (out domain.Suspension, err error) {
	err = s.view(func(st *state) error { out, err = st.activeSuspension(actor, now); return err })
	return out, err
}

func (s *Store) ListOpenJobs(_ context.Context, q store.OpenJobsQuery) ([]domain.Job, error) {
	var out []domain.Job
	_ = s.view(func(st *state) error {
		for _, j := range st.jobs {
			if j.Status != domain.JobOpen || j.ScheduledAt.Before(q.ScheduledFrom) {
				continue
			}
			if q.EquipmentType != "" && j.EquipmentType != q.EquipmentType {
				continue
			}
			cutoff := q.ReleasedBefore
			if j.Urgent {
				cutoff = q.UrgentReleasedBefore
			}
			if cutoff != nil && j.CreatedAt.After(*cutoff) {
				continue
			}
			if q.Rating != nil && j.MinRating != nil && *j.MinRating > *q.Rating {
				continue
			}
			out = append(out, j)
		}
		return nil
	})

	sort.Slice(out, func(i, k int) bool {
		if out[i].Urgent != out[k].Urgent {
			return out[i].Urgent
		}
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID > out[k].ID
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) ListSuspensions(_ context.Context, q store.SuspensionQuery) ([]domain.Suspension, error) {
	var out []domain.Suspension
	_ = s.view(func(st *state) error {
		for _, sp := range st.suspensions {
			if q.Actor != nil && sp.Actor() != *q.Actor {
				continue
			}
			if q.ActiveOnly && !sp.Active {
				continue
			}
			out = append(out, sp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) ListViolations(_ context.Context, q store.ViolationQuery) ([]domain.Violation, error) {
	var out []domain.Violation
	_ = s.view(func(st *state) error {
		for _, v := range st.violations {
			if q.Actor != nil && v.Actor() != *q.Actor {
				continue
			}
			if q.After != nil && !olderThan(v, *q.After) {
				continue
			}
			out = append(out, v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func olderThan(v domain.Violation, c store.Cursor) bool {
	if v.CreatedAt.Equal(c.CreatedAt) {
		return v.ID < c.ID
	}
	return v.CreatedAt.Before(c.CreatedAt)
}

func (s *Store) ListGradeHistory(_ context.Context, contractorID int64) ([]domain.GradeHistory, error) {
	var out []domain.GradeHistory
	_ = s.view(func(st *state) error {
		for _, h := range st.grades {
			if h.ContractorID == contractorID {
				out = append(out, h)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListExpiredSuspensions(_ context.Context, now time.Time, limit int) ([]domain.Suspension, error) {
	var out []domain.Suspension
	_ = s.view(func(st *state) error {
		for _, sp := range st.suspensions {
			if due(sp, now) {
				out = append(out, sp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(*out[j].EndAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func due(sp domain.Suspension, now time.Time) bool {
	return sp.Active && sp.Kind == domain.SuspensionTemporary && sp.EndAt != nil && !sp.EndAt.After(now)
}

func (s *Store) ExpireSuspension(_ context.Context, id int64, now time.Time) (bool, error) {
	flipped := false
	err := s.view(func(st *state) error {
		sp, ok := st.suspensions[id]
		if !ok || !sp.Active || sp.EndAt == nil || sp.EndAt.After(now) {
			return nil
		}
		sp.Active = false
		at := now
		sp.LiftedAt = &at
		st.suspensions[id] = sp
		flipped = true
		return nil
	})
	return flipped, err
}

func (s *Store) SetReportURL(_ context.Context, matchID int64, url string) (bool, error) {
	stored := false
	err := s.view(func(st *state) error {
		m, err := st.getMatch(matchID)
		if err != nil {
			return nil
		}
		if m.ReportURL != nil {
			return nil
		}
		u := url
		m.ReportURL = &u
		m.UpdatedAt = time.Now()
		st.matches[matchID] = m
		stored = true
		return nil
	})
	return stored, err
}

func (s *Store) Settings(context.Context) (map[string]string, error) {
	var out map[string]string
	_ = s.view(func(st *state) error { out = cloneMap(st.settings); return nil })
	return out, nil
}

func (s *Store) PutSetting(_ context.Context, key, value string) error {
	return s.view(func(st *state) error { st.settings[key] = value; return nil })
}
