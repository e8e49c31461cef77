package settings

import (
	"log/slog"
	"strconv"
	"time"
)

// Keys of the runtime business settings.
const (
	KeyGrade2DelayMinutes     = "grade_2_delay_minutes"
	KeyGrade3DelayMinutes     = "grade_3_delay_minutes"
	KeyUrgentExposureMinutes  = "urgent_dispatch_exposure_minutes"
	KeyWarningThreshold1      = "warning_threshold_1"
	KeySuspensionDays1        = "suspension_days_1"
	KeyWarningThreshold2      = "warning_threshold_2"
	KeySuspensionDays2        = "suspension_days_2"
	KeyDefaultDispatchRadiusK = "default_dispatch_radius_km"
)

// Values is an immutable snapshot of the runtime settings.
type Values struct {
	Grade2Delay       time.Duration
	Grade3Delay       time.Duration
	UrgentDelay       time.Duration
	WarningThreshold1 int
	SuspensionDays1   int
	WarningThreshold2 int
	SuspensionDays2   int
	DefaultRadiusKm   float64
}

// Defaults returns the built-in values used for any missing key.
func Defaults() Values {
	return Values{
		Grade2Delay:       5 * time.Minute,
		Grade3Delay:       15 * time.Minute,
		UrgentDelay:       0,
		WarningThreshold1: 3,
		SuspensionDays1:   3,
		WarningThreshold2: 5,
		SuspensionDays2:   7,
		DefaultRadiusKm:   50,
	}
}

// Keys lists every known key with its default rendered as a string.
func Keys() map[string]string {
	return Defaults().Map()
}

// Known reports whether key is a recognised setting.
func Known(key string) bool {
	_, ok := Keys()[key]
	return ok
}

// Map renders v in the raw key/value form a Source yields.
func (v Values) Map() map[string]string {
	return map[string]string{
		KeyGrade2DelayMinutes:     strconv.Itoa(int(v.Grade2Delay / time.Minute)),
		KeyGrade3DelayMinutes:     strconv.Itoa(int(v.Grade3Delay / time.Minute)),
		KeyUrgentExposureMinutes:  strconv.Itoa(int(v.UrgentDelay / time.Minute)),
		KeyWarningThreshold1:      strconv.Itoa(v.WarningThreshold1),
		KeySuspensionDays1:        strconv.Itoa(v.SuspensionDays1),
		KeyWarningThreshold2:      strconv.Itoa(v.WarningThreshold2),
		KeySuspensionDays2:        strconv.Itoa(v.SuspensionDays2),
		KeyDefaultDispatchRadiusK: strconv.FormatFloat(v.DefaultRadiusKm, 'f', -1, 64),
	}
}

// Parse builds Values from raw key/value pairs. Missing keys keep their
// default; unparsable or negative values are logged and also keep it.
func Parse(raw map[string]string, logger *slog.Logger) Values {
	v := Defaults()
	p := parser{raw: raw, logger: logger}

	v.Grade2Delay = p.minutes(KeyGrade2DelayMinutes, v.Grade2Delay)
	v.Grade3Delay = p.minutes(KeyGrade3DelayMinutes, v.Grade3Delay)
	v.UrgentDelay = p.minutes(KeyUrgentExposureMinutes, v.UrgentDelay)
	v.WarningThreshold1 = p.positive(KeyWarningThreshold1, v.WarningThreshold1)
	v.SuspensionDays1 = p.positive(KeySuspensionDays1, v.SuspensionDays1)
	v.WarningThreshold2 = p.positive(KeyWarningThreshold2, v.WarningThreshold2)
	v.SuspensionDays2 = p.positive(KeySuspensionDays2, v.SuspensionDays2)
	v.DefaultRadiusKm = p.float(KeyDefaultDispatchRadiusK, v.DefaultRadiusKm)

	if v.WarningThreshold2 <= v.WarningThreshold1 {
		logger.Warn("Second warning threshold must exceed the first, using defaults",
			slog.Int("threshold_1", v.WarningThreshold1),
			slog.Int("threshold_2", v.WarningThreshold2),
		)
		d := Defaults()
		v.WarningThreshold1, v.WarningThreshold2 = d.WarningThreshold1, d.WarningThreshold2
	}

	return v
}

type parser struct {
	raw    map[string]string
	logger *slog.Logger
}

func (p parser) lookup(key string) (string, bool) {
	s, ok := p.raw[key]
	return s, ok && s != ""
}

func (p parser) invalid(key, value string) {
	p.logger.Warn("Invalid setting value, using default",
		slog.String("key", key),
		slog.String("value", value),
	)
}

func (p parser) minutes(key string, def time.Duration) time.Duration {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		p.invalid(key, s)
		return def
	}
	return time.Duration(n) * time.Minute
}

func (p parser) positive(key string, def int) int {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		p.invalid(key, s)
		return def
	}
	return n
}

func (p parser) float(key string, def float64) float64 {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		p.invalid(key, s)
		return def
	}
	return f
}
