package service

import "time"

const (
	defaultMaxRetries        = 5
	defaultRetryBaseDelay    = 2 * time.Millisecond
	defaultWarningMultiplier = 1.5
	defaultConsumptionWindow = 30 * 24 * time.Hour
)

// Options tunes the services. Zero values fall back to defaults.
type Options struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	WarningMultiplier float64
	ConsumptionWindow time.Duration
	Now               func() time.Time
}

func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}
	if o.WarningMultiplier < 1 {
		o.WarningMultiplier = defaultWarningMultiplier
	}
	if o.ConsumptionWindow <= 0 {
		o.ConsumptionWindow = defaultConsumptionWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) windowDays() int {
	days := int(o.ConsumptionWindow / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}
