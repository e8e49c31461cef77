package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
)

// Source loads the raw key/value settings.
type Source interface {
	Load(ctx context.Context) (map[string]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (map[string]string, error)

func (f SourceFunc) Load(ctx context.Context) (map[string]string, error) {
	return f(ctx)
}

// StaticSource serves a fixed map.
type StaticSource map[string]string

func (s StaticSource) Load(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// Provider holds the current settings snapshot and refreshes it from a
// Source. Readers never block on a reload.
type Provider struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Values]

	mu          sync.Mutex
	fingerprint [32]byte
	loaded      bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProvider returns a Provider serving Defaults until the first Reload.
func NewProvider(source Source, logger *slog.Logger) *Provider {
	p := &Provider{
		source: source,
		logger: logger.With("component", "settings"),
		stopCh: make(chan struct{}),
	}
	d := Defaults()
	p.current.Store(&d)
	return p
}

// Current returns the latest snapshot.
func (p *Provider) Current() Values {
	return *p.current.Load()
}

// Reload fetches the source and swaps the snapshot when its content changed.
// It reports whether a new snapshot was installed.
func (p *Provider) Reload(ctx context.Context) (bool, error) {
	raw, err := p.source.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load settings: %w", err)
	}

	sum := Fingerprint(raw)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded && sum == p.fingerprint {
		return false, nil
	}

	v := Parse(raw, p.logger)
	p.current.Store(&v)
	p.fingerprint = sum
	p.loaded = true

	p.logger.Info("Settings reloaded",
		slog.Duration("grade_2_delay", v.Grade2Delay),
		slog.Duration("grade_3_delay", v.Grade3Delay),
		slog.Duration("urgent_delay", v.UrgentDelay),
		slog.Int("warning_threshold_1", v.WarningThreshold1),
		slog.Int("warning_threshold_2", v.WarningThreshold2),
	)
	return true, nil
}

// Start performs an initial reload and then refreshes every interval
// until ctx is done or Stop is called. Load failures keep the previous
// snapshot.
func (p *Provider) Start(ctx context.Context, interval time.Duration) {
	if _, err := p.Reload(ctx); err != nil {
		p.logger.Warn("Initial settings load failed, serving defaults", slog.Any("error", err))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if _, err := p.Reload(ctx); err != nil {
					p.logger.Warn("Settings reload failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// Stop ends the refresh loop started by Start.
func (p *Provider) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Fingerprint hashes raw settings independent of map order.
func Fingerprint(raw map[string]string) [32]byte {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(raw[k])
		b.WriteByte('\n')
	}
	return blake3.Sum256([]byte(b.String()))
}
