package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/store"
)

type Service struct {
	store     store.Store
	generator Generator
	logger    *slog.Logger
}

func NewService(st store.Store, g Generator, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		generator: g,
		logger:    logger.With("component", "report_service"),
	}
}

// Generate returns the report url of a signed match, rendering it on first
// use. Concurrent callers may both render, but only the first url is kept
// and every caller gets that one.
func (s *Service) Generate(ctx context.Context, matchID int64) (string, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return "", domain.ErrMatchNotFound
	}
	if err != nil {
		return "", err
	}
	if m.Status != domain.MatchSigned {
		return "", domain.ErrClientSignatureRequired
	}
	if m.ReportURL != nil {
		metrics.ReportsTotal.WithLabelValues("cached").Inc()
		return *m.ReportURL, nil
	}

	doc, err := s.document(ctx, m)
	if err != nil {
		return "", err
	}

	url, err := s.generator.Generate(ctx, doc)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to generate report for match %d: %w", matchID, err)
	}

	stored, err := s.store.SetReportURL(ctx, matchID, url)
	if err != nil {
		return "", err
	}
	if !stored {
		current, err := s.store.GetMatch(ctx, matchID)
		if err != nil {
			return "", err
		}
		if current.ReportURL != nil {
			metrics.ReportsTotal.WithLabelValues("cached").Inc()
			return *current.ReportURL, nil
		}
	}

	metrics.ReportsTotal.WithLabelValues("generated").Inc()
	s.logger.Info("Work report generated",
		slog.Int64("match_id", matchID),
		slog.Int64("job_id", m.JobID),
		slog.String("url", url),
	)
	return url, nil
}

// Regenerate serves the report endpoint: the requester side, the matched
// contractor and admins may fetch a job's report.
func (s *Service) Regenerate(ctx context.Context, p domain.Principal, jobID int64) (string, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return "", domain.ErrJobNotFound
	}
	if err != nil {
		return "", err
	}
	m, err := s.store.GetMatchByJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return "", domain.ErrMatchNotFound
	}
	if err != nil {
		return "", err
	}

	contractorSide := p.Role == domain.RoleContractor && p.ID == m.ContractorID
	if !contractorSide && !job.OwnedBy(p) {
		return "", domain.ErrNotAllowed
	}
	return s.Generate(ctx, m.ID)
}

func (s *Service) document(ctx context.Context, m domain.Match) (Document, error) {
	job, err := s.store.GetJob(ctx, m.JobID)
	if err != nil {
		return Document{}, fmt.Errorf("failed to load job %d: %w", m.JobID, err)
	}
	c, err := s.store.GetContractor(ctx, m.ContractorID)
	if err != nil {
		return Document{}, fmt.Errorf("failed to load contractor %d: %w", m.ContractorID, err)
	}
	return Document{Job: job, Match: m, Contractor: c}, nil
}
