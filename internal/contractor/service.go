// Package contractor manages contractor onboarding, grading and the
// equipment each contractor offers.
package contractor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/verify"
)

type Service struct {
	store    store.Store
	verifier verify.Verifier
	notifier notify.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Publisher) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the service. A nil verifier falls back to local checks only.
func New(st store.Store, v verify.Verifier, logger *slog.Logger, opts ...Option) *Service {
	if v == nil {
		v = verify.Offline{}
	}
	s := &Service{
		store:    st,
		verifier: v,
		notifier: notify.Discard{},
		logger:   logger.With("component", "contractor_service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type EquipmentInput struct {
	Type          domain.EquipmentType
	Model         string
	Tonnage       *float64
	MaxHeight     *float64
	VehicleNumber string
	Status        domain.EquipmentStatus
}

func (in EquipmentInput) validate() error {
	if !in.Type.Valid() {
		return domain.Invalid("unknown equipment type %q", in.Type)
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.Invalid("unknown equipment status %q", in.Status)
	}
	if in.MaxHeight != nil && *in.MaxHeight < 0 {
		return domain.Invalid("max height must not be negative")
	}
	if in.Tonnage != nil && *in.Tonnage < 0 {
		return domain.Invalid("tonnage must not be negative")
	}
	return nil
}

func (in EquipmentInput) unit(contractorID int64, now time.Time) domain.Equipment {
	status := in.Status
	if status == "" {
		status = domain.EquipmentActive
	}
	return domain.Equipment{
		ContractorID:  contractorID,
		Type:          in.Type,
		Model:         strings.TrimSpace(in.Model),
		Tonnage:       in.Tonnage,
		MaxHeight:     in.MaxHeight,
		VehicleNumber: strings.TrimSpace(in.VehicleNumber),
		Status:        status,
		CreatedAt:     now,
	}
}

type RegisterInput struct {
	Name                       string
	Phone                      string
	BusinessRegistrationNumber string
	BusinessName               string
	LicenseNumber              string
	Equipment                  []EquipmentInput
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name is required")
	}
	if strings.TrimSpace(in.BusinessRegistrationNumber) == "" {
		return domain.Invalid("business registration number is required")
	}
	for _, e := range in.Equipment {
		if err := e.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Register creates a contractor awaiting approval. The business
// registration number is checked first: a definite Invalid verdict rejects
// the registration, an Unknown verdict or an unreachable verifier leaves
// the contractor Verifying.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Contractor, error) {
	if err := in.validate(); err != nil {
		return domain.Contractor{}, err
	}
	brn := verify.NormalizeBusinessNumber(in.BusinessRegistrationNumber)

	status := domain.VerificationPending
	var message string
	resp, err := s.verifier.VerifyBusiness(ctx, brn)
	switch {
	case err != nil:
		s.logger.Warn("Business verification unavailable",
			slog.String("business_registration_number", brn),
			slog.Any("error", err),
		)
		status = domain.VerificationVerifying
		message = string(verify.Unknown) + ": verification unavailable"
	case resp.Result == verify.Invalid:
		return domain.Contractor{}, domain.Invalid("business registration number failed verification: %s", resp.ReasonCode)
	case resp.Result == verify.Unknown:
		status = domain.VerificationVerifying
		message = resp.Summary()
	default:
		message = resp.Summary()
	}

	now := s.now()
	var c domain.Contractor
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.CreateContractor(ctx, domain.Contractor{
			Name:                       strings.TrimSpace(in.Name),
			Phone:                      strings.TrimSpace(in.Phone),
			BusinessRegistrationNumber: brn,
			BusinessName:               strings.TrimSpace(in.BusinessName),
			LicenseNumber:              strings.TrimSpace(in.LicenseNumber),
			VerificationStatus:         status,
			VerificationMessage:        &message,
			Grade:                      domain.GradeThird,
			CreatedAt:                  now,
			UpdatedAt:                  now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ErrAlreadyExists
		}
		if err != nil {
			return err
		}
		for _, e := range in.Equipment {
			if _, err := tx.CreateEquipment(ctx, e.unit(c.ID, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Contractor{}, err
	}

	s.logger.Info("Contractor registered",
		slog.Int64("contractor_id", c.ID),
		slog.String("verification_status", string(c.VerificationStatus)),
		slog.Int("equipment", len(in.Equipment)),
	)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Contractor, error) {
	c, err := s.store.GetContractor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Contractor{}, domain.ErrContractorNotFound
	}
	return c, err
}

// update locks the contractor, applies fn and writes the result back.
func (s *Service) update(ctx context.Context, id int64, fn func(c *domain.Contractor) error) (domain.Contractor, error) {
	var c domain.Contractor
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.LockContractor(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrContractorNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		return tx.UpdateContractor(ctx, c)
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

func awaitingReview(c domain.Contractor) bool {
	return c.VerificationStatus == domain.VerificationPending || c.VerificationStatus == domain.VerificationVerifying
}

// Approve verifies a pending contractor and activates it.
func (s *Service) Approve(ctx context.Context, p domain.Principal, id int64) (domain.Contractor, error) {
	if !p.IsAdmin() {
		return domain.Contractor{}, domain.ErrNotAllowed
	}
	c, err := s.update(ctx, id, func(c *domain.Contractor) error {
		if !awaitingReview(*c) {
			return domain.ErrInvalidTransition
		}
		at := s.now()
		by := p.ID
		c.VerificationStatus = domain.VerificationVerified
		c.ApprovedAt = &at
		c.ApprovedBy = &by
		c.Active = true
		return nil
	})
	if err != nil {
		return domain.Contractor{}, err
	}

	s.logger.Info("Contractor approved", slog.Int64("contractor_id", id), slog.Int64("approved_by", p.ID))
	s.notifier.Publish(ctx, notify.NewEvent(notify.ContractorApproved, notify.ToContractor, id, "Your registration was approved"))
	return c, nil
}

func (s *Service) Reject(ctx context.Context, p domain.Principal, id int64, reason string) (domain.Contractor, error) {
	if !p.IsAdmin() {
		return domain.Contractor{}, domain.ErrNotAllowed
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Contractor{}, domain.Invalid("reason is required")
	}
	c, err := s.update(ctx, id, func(c *domain.Contractor) error {
		if !awaitingReview(*c) {
			return domain.ErrInvalidTransition
		}
		c.VerificationStatus = domain.VerificationRejected
		c.VerificationMessage = &reason
		c.Active = false
		return nil
	})
	if err != nil {
		return domain.Contractor{}, err
	}

	s.logger.Info("Contractor rejected", slog.Int64("contractor_id", id), slog.String("reason", reason))
	s.notifier.Publish(ctx, notify.NewEvent(notify.ContractorRejected, notify.ToContractor, id, "Your registration was rejected").
		With("reason", reason))
	return c, nil
}

// UpdateGrade changes the exposure tier and appends a GradeHistory entry in
// the same transaction. Setting the current grade again records nothing.
func (s *Service) UpdateGrade(ctx context.Context, p domain.Principal, id int64, grade int, reason string) (domain.Contractor, error) {
	if !p.IsAdmin() {
		return domain.Contractor{}, domain.ErrNotAllowed
	}
	if !domain.ValidGrade(grade) {
		return domain.Contractor{}, domain.Invalid("grade must be between %d and %d", domain.GradeFirst, domain.GradeThird)
	}

	now := s.now()
	var (
		c        domain.Contractor
		previous int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.LockContractor(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrContractorNotFound
		}
		if err != nil {
			return err
		}
		previous = c.Grade
		if previous == grade {
			return nil
		}

		c.Grade = grade
		c.UpdatedAt = now
		if err := tx.UpdateContractor(ctx, c); err != nil {
			return err
		}
		_, err = tx.CreateGradeHistory(ctx, domain.GradeHistory{
			ContractorID:  id,
			PreviousGrade: previous,
			NewGrade:      grade,
			Reason:        strings.TrimSpace(reason),
			ChangedBy:     p.ID,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		return domain.Contractor{}, err
	}

	if previous != grade {
		s.logger.Info("Contractor grade changed",
			slog.Int64("contractor_id", id),
			slog.Int("previous_grade", previous),
			slog.Int("new_grade", grade),
		)
	}
	return c, nil
}

func (s *Service) GradeHistory(ctx context.Context, id int64) ([]domain.GradeHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListGradeHistory(ctx, id)
}

func (s *Service) UpdateLocation(ctx context.Context, id int64, lat, lng float64) (domain.Contractor, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.Contractor{}, domain.Invalid("coordinates out of range")
	}
	return s.update(ctx, id, func(c *domain.Contractor) error {
		at := s.now()
		c.Latitude = &lat
		c.Longitude = &lng
		c.LocationUpdatedAt = &at
		return nil
	})
}

// SetActive toggles availability. Only verified contractors can go active.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (domain.Contractor, error) {
	return s.update(ctx, id, func(c *domain.Contractor) error {
		if active && !c.Verified() {
			return domain.ErrNotVerified
		}
		c.Active = active
		return nil
	})
}

func (s *Service) ListEquipment(ctx context.Context, contractorID int64) ([]domain.Equipment, error) {
	if _, err := s.Get(ctx, contractorID); err != nil {
		return nil, err
	}
	return s.store.ListEquipment(ctx, contractorID)
}

func (s *Service) AddEquipment(ctx context.Context, contractorID int64, in EquipmentInput) (domain.Equipment, error) {
	if err := in.validate(); err != nil {
		return domain.Equipment{}, err
	}

	var e domain.Equipment
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockContractor(ctx, contractorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrContractorNotFound
			}
			return err
		}
		var err error
		e, err = tx.CreateEquipment(ctx, in.unit(contractorID, s.now()))
		return err
	})
	if err != nil {
		return domain.Equipment{}, err
	}

	s.logger.Info("Equipment added",
		slog.Int64("contractor_id", contractorID),
		slog.Int64("equipment_id", e.ID),
		slog.String("type", string(e.Type)),
	)
	return e, nil
}

func (s *Service) SetEquipmentStatus(ctx context.Context, contractorID, equipmentID int64, status domain.EquipmentStatus) (domain.Equipment, error) {
	if !status.Valid() {
		return domain.Equipment{}, domain.Invalid("unknown equipment status %q", status)
	}

	var e domain.Equipment
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		e, err = tx.UpdateEquipmentStatus(ctx, contractorID, equipmentID, status)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrEquipmentNotFound
		}
		return err
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return e, nil
}
