package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/store"
)

type CreateJobInput struct {
	SiteAddress   string
	SiteDetail    string
	Latitude      float64
	Longitude     float64
	ScheduledAt   time.Time
	EquipmentType domain.EquipmentType
	MinHeight     *float64
	MinRating     *float64
	Description   string
	Price         *int64
	PriceType     domain.PriceType
	Urgent        bool
}

func (in CreateJobInput) validate() error {
	if strings.TrimSpace(in.SiteAddress) == "" {
		return domain.Invalid("site address is required")
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return domain.Invalid("coordinates out of range")
	}
	if in.ScheduledAt.IsZero() {
		return domain.Invalid("scheduled time is required")
	}
	if !in.EquipmentType.Valid() {
		return domain.Invalid("unknown equipment type %q", in.EquipmentType)
	}
	if in.PriceType != "" && !in.PriceType.Valid() {
		return domain.Invalid("unknown price type %q", in.PriceType)
	}
	if in.MinHeight != nil && *in.MinHeight < 0 {
		return domain.Invalid("minimum height must not be negative")
	}
	if in.MinRating != nil && (*in.MinRating < 0 || *in.MinRating > 5) {
		return domain.Invalid("minimum rating must be between 0 and 5")
	}
	if in.Price != nil && *in.Price < 0 {
		return domain.Invalid("price must not be negative")
	}
	return nil
}

// CreateJob opens a job on behalf of a requester. A suspended organization
// cannot create jobs.
func (s *Service) CreateJob(ctx context.Context, p domain.Principal, in CreateJobInput) (domain.Job, error) {
	if p.Role != domain.RoleRequester && !p.IsAdmin() {
		return domain.Job{}, domain.ErrNotAllowed
	}
	if err := in.validate(); err != nil {
		return domain.Job{}, err
	}
	if in.PriceType == "" {
		in.PriceType = domain.PriceFixed
	}

	now := s.now()
	var job domain.Job
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if p.OrganizationID != nil {
			org, err := tx.GetOrganization(ctx, *p.OrganizationID)
			if err != nil {
				return orNotFound(err, domain.ErrOrganizationNotFound)
			}
			if _, err := tx.ActiveSuspension(ctx, domain.Actor{Type: domain.ActorOrganization, ID: org.ID}, now); err == nil {
				return domain.ErrSuspended
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		var err error
		job, err = tx.CreateJob(ctx, domain.Job{
			RequesterID:    p.ID,
			OrganizationID: p.OrganizationID,
			SiteAddress:    strings.TrimSpace(in.SiteAddress),
			SiteDetail:     in.SiteDetail,
			Latitude:       in.Latitude,
			Longitude:      in.Longitude,
			ScheduledAt:    in.ScheduledAt,
			EquipmentType:  in.EquipmentType,
			MinHeight:      in.MinHeight,
			MinRating:      in.MinRating,
			Description:    in.Description,
			Price:          in.Price,
			PriceType:      in.PriceType,
			Urgent:         in.Urgent,
			Status:         domain.JobOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return err
	})
	if err != nil {
		return domain.Job{}, err
	}

	s.logger.Info("Job created",
		slog.Int64("job_id", job.ID),
		slog.Int64("requester_id", p.ID),
		slog.String("equipment_type", string(job.EquipmentType)),
		slog.Bool("urgent", job.Urgent),
	)
	s.notifier.Publish(ctx, notify.NewEvent(notify.NewDispatch, notify.ToBroadcast, 0, "New dispatch request").
		ForJob(job.ID, 0).
		With("equipment_type", string(job.EquipmentType)).
		With("site_address", job.SiteAddress))
	return job, nil
}

const maxOpenJobs = 200

// OpenJobsQuery narrows the open listing. When Latitude and Longitude are
// set, jobs farther than RadiusKm are dropped; RadiusKm defaults to the
// configured dispatch radius.
type OpenJobsQuery struct {
	EquipmentType domain.EquipmentType
	Latitude      *float64
	Longitude     *float64
	RadiusKm      *float64
	Limit         int
}

// ListOpenJobs returns the open jobs the contractor may currently see. A
// suspended contractor sees nothing.
func (s *Service) ListOpenJobs(ctx context.Context, contractorID int64, q OpenJobsQuery) ([]domain.Job, error) {
	if q.EquipmentType != "" && !q.EquipmentType.Valid() {
		return nil, domain.Invalid("unknown equipment type %q", q.EquipmentType)
	}
	if (q.Latitude == nil) != (q.Longitude == nil) {
		return nil, domain.Invalid("latitude and longitude must be given together")
	}

	c, err := s.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, orNotFound(err, domain.ErrContractorNotFound)
	}
	if !c.Verified() {
		return nil, domain.ErrNotVerified
	}

	now := s.now()
	if _, err := s.store.ActiveSuspension(ctx, c.Actor(), now); err == nil {
		return []domain.Job{}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = maxOpenJobs
	}
	radius := s.values().DefaultRadiusKm
	if q.RadiusKm != nil && *q.RadiusKm > 0 {
		radius = *q.RadiusKm
	}

	regular, urgent := s.exposure.Cutoffs(c.Grade, now)
	rating := c.Rating
	y, m, d := now.Date()
	sq := store.OpenJobsQuery{
		ScheduledFrom:        time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		EquipmentType:        q.EquipmentType,
		ReleasedBefore:       &regular,
		UrgentReleasedBefore: &urgent,
		Rating:               &rating,
		Limit:                limit,
	}

	// The radius is checked here, so keep paging until limit jobs survive it.
	out := []domain.Job{}
	for {
		page, err := s.store.ListOpenJobs(ctx, sq)
		if err != nil {
			return nil, err
		}
		for _, j := range s.exposure.Filter(page, c, now) {
			if q.Latitude != nil && DistanceKm(*q.Latitude, *q.Longitude, j.Latitude, j.Longitude) > radius {
				continue
			}
			out = append(out, j)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(page) < sq.Limit {
			return out, nil
		}
		sq.Offset += len(page)
	}
}

func (s *Service) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, orNotFound(err, domain.ErrJobNotFound)
	}
	return job, nil
}

// GetMatch returns the job's live match, or its last cancelled one. Only the
// requester side, the matched contractor and admins may read it.
func (s *Service) GetMatch(ctx context.Context, p domain.Principal, jobID int64) (domain.Match, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return domain.Match{}, err
	}
	m, err := s.store.GetMatchByJob(ctx, jobID)
	if err != nil {
		return domain.Match{}, orNotFound(err, domain.ErrMatchNotFound)
	}

	contractorSide := p.Role == domain.RoleContractor && p.ID == m.ContractorID
	if !contractorSide && !job.OwnedBy(p) {
		return domain.Match{}, domain.ErrNotAllowed
	}
	return m, nil
}

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
