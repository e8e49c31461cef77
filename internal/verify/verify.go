// Package verify checks contractor credentials against an external
// verification service.
package verify

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

	"golang.org/x/time/rate"
)

type Result string

const (
	Valid   Result = "VALID"
	Invalid Result = "INVALID"
	Unknown Result = "UNKNOWN"
)

// Response is the verdict for one credential. ReasonCode is a short machine
// code such as INVALID_FORMAT or NOT_CONFIGURED.
type Response struct {
	RequestID  string `json:"requestId,omitempty"`
	Result     Result `json:"result"`
	ReasonCode string `json:"reasonCode,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Summary renders the response for storing as a verification message.
func (r Response) Summary() string {
	parts := []string{string(r.Result)}
	if r.ReasonCode != "" {
		parts = append(parts, r.ReasonCode)
	}
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	return strings.Join(parts, ": ")
}

//go:generate mockgen -destination=mocks/mock_verifier.go -package=mocks github.com/cho-y-j/dispatch/internal/verify Verifier

// Verifier checks credentials. An error means the check could not be made;
// a definite answer is always carried in the Response.
type Verifier interface {
	VerifyBusiness(ctx context.Context, number string) (Response, error)
	VerifyDriverLicense(ctx context.Context, licenseNumber, name string) (Response, error)
}

var ErrUnavailable = errors.New("verification service unavailable")

// businessWeights are the check digit weights of a 10 digit business
// registration number.
var businessWeights = [9]int{1, 3, 7, 1, 3, 7, 1, 3, 5}

// NormalizeBusinessNumber strips dashes and spaces.
func NormalizeBusinessNumber(n string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(n)
}

// CheckBusinessNumber validates the format and check digit of a business
// registration number. It returns a reason code, or "" when the number is
// well formed.
func CheckBusinessNumber(n string) string {
	n = NormalizeBusinessNumber(n)
	if len(n) != 10 {
		return "INVALID_FORMAT"
	}
	digits := make([]int, 10)
	for i, r := range n {
		if r < '0' || r > '9' {
			return "INVALID_FORMAT"
		}
		digits[i] = int(r - '0')
	}

	sum := 0
	for i, w := range businessWeights {
		sum += digits[i] * w
	}
	sum += digits[8] * 5 / 10
	if (10-sum%10)%10 != digits[9] {
		return "INVALID_CHECKSUM"
	}
	return ""
}

// Offline answers from local checks only. Well formed numbers are Unknown.
type Offline struct{}

func (Offline) VerifyBusiness(_ context.Context, number string) (Response, error) {
	if code := CheckBusinessNumber(number); code != "" {
		return Response{Result: Invalid, ReasonCode: code, Provider: "local"}, nil
	}
	return Response{Result: Unknown, ReasonCode: "NOT_CONFIGURED", Provider: "local"}, nil
}

func (Offline) VerifyDriverLicense(_ context.Context, licenseNumber, _ string) (Response, error) {
	if strings.TrimSpace(licenseNumber) == "" {
		return Response{Result: Invalid, ReasonCode: "INVALID_FORMAT", Provider: "local"}, nil
	}
	return Response{Result: Unknown, ReasonCode: "NOT_CONFIGURED", Provider: "local"}, nil
}

type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// Client calls the remote verification API. Outgoing calls are throttled
// so a burst of registrations cannot exhaust the provider's quota.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "verify_client"),
	}
}

// VerifyBusiness rejects malformed numbers locally and asks the remote
// service about the rest.
func (c *Client) VerifyBusiness(ctx context.Context, number string) (Response, error) {
	if code := CheckBusinessNumber(number); code != "" {
		return Response{Result: Invalid, ReasonCode: code, Provider: "local"}, nil
	}
	body := map[string]string{"businessNumber": NormalizeBusinessNumber(number)}
	return c.post(ctx, "/api/verify/business", body)
}

func (c *Client) VerifyDriverLicense(ctx context.Context, licenseNumber, name string) (Response, error) {
	body := map[string]string{"lcnsNo": strings.TrimSpace(licenseNumber), "name": strings.TrimSpace(name)}
	return c.post(ctx, "/api/verify/license", body)
}

func (c *Client) post(ctx context.Context, path string, payload any) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("verification throttled: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode verification request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Response{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("failed to decode verification response: %w", err)
	}
	if out.Result == "" {
		out.Result = Unknown
	}

	c.logger.Debug("Verification call finished",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("result", string(out.Result)),
		slog.Duration("latency", time.Since(start)),
	)
	return out, nil
}
