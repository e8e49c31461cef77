// Package report produces the work report of a signed match and stores its
// location on the match.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
)

// ErrUnavailable marks failures worth retrying: the renderer could not be
// reached or answered with a server error.
var ErrUnavailable = errors.New("report renderer unavailable")

// Document is everything printed on a work report.
type Document struct {
	Job        domain.Job        `json:"job"`
	Match      domain.Match      `json:"match"`
	Contractor domain.Contractor `json:"contractor"`
}

// Generator renders a document and returns where it can be fetched.
type Generator interface {
	Generate(ctx context.Context, doc Document) (string, error)
}

type GeneratorFunc func(ctx context.Context, doc Document) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, doc Document) (string, error) {
	return f(ctx, doc)
}

// Unconfigured stands in when no renderer endpoint is set.
var Unconfigured Generator = GeneratorFunc(func(context.Context, Document) (string, error) {
	return "", fmt.Errorf("%w: no renderer configured", ErrUnavailable)
})

// HTTPGenerator delegates rendering to a document service that answers
// with {"url": "..."}.
type HTTPGenerator struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

func NewHTTPGenerator(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "report_generator"),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, doc Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode report document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("report renderer rejected match %d: status %d: %s", doc.Match.ID, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode report response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("report renderer returned no url for match %d", doc.Match.ID)
	}

	g.logger.Debug("Report rendered", slog.Int64("match_id", doc.Match.ID), slog.String("url", out.URL))
	return out.URL, nil
}
