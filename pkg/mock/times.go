package mock

import (
	"fmt"
	"time"
)

// TimeUnit names a unit of time in serialized form.
type TimeUnit string

const (
	Nanoseconds  TimeUnit = "NANOSECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Seconds      TimeUnit = "SECONDS"
	Minutes      TimeUnit = "MINUTES"
	Hours        TimeUnit = "HOURS"
	Days         TimeUnit = "DAYS"
)

// Duration converts n units into a time.Duration.
func (u TimeUnit) Duration(n int64) (time.Duration, error) {
	var unit time.Duration
	switch u {
	case Nanoseconds:
		unit = time.Nanosecond
	case Microseconds:
		unit = time.Microsecond
	case Milliseconds, "":
		unit = time.Millisecond
	case Seconds:
		unit = time.Second
	case Minutes:
		unit = time.Minute
	case Hours:
		unit = time.Hour
	case Days:
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit %q", u)
	}
	return time.Duration(n) * unit, nil
}

// Delay postpones a response or error.
type Delay struct {
	TimeUnit TimeUnit `json:"timeUnit"`
	Value    int64    `json:"value"`
}

// NewDelay returns a delay of n units.
func NewDelay(unit TimeUnit, n int64) *Delay {
	return &Delay{TimeUnit: unit, Value: n}
}

// Duration returns the delay length. Unknown units yield no delay.
func (d *Delay) Duration() time.Duration {
	if d == nil {
		return 0
	}
	v, err := d.TimeUnit.Duration(d.Value)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Times is how many more matches an expectation may serve.
type Times struct {
	RemainingTimes int  `json:"remainingTimes"`
	Unlimited      bool `json:"unlimited"`
}

// TimesOnce allows a single match.
func TimesOnce() Times {
	return Times{RemainingTimes: 1}
}

// TimesExactly allows n matches.
func TimesExactly(n int) Times {
	return Times{RemainingTimes: n}
}

// TimesUnlimited never runs out.
func TimesUnlimited() Times {
	return Times{Unlimited: true}
}

// TimeToLive bounds how long an expectation stays eligible after registration.
type TimeToLive struct {
	TimeUnit   TimeUnit `json:"timeUnit,omitempty"`
	TimeToLive int64    `json:"timeToLive,omitempty"`
	Unlimited  bool     `json:"unlimited"`
}

// TTLUnlimited never expires.
func TTLUnlimited() TimeToLive {
	return TimeToLive{Unlimited: true}
}

// TTLExactly expires n units after registration.
func TTLExactly(unit TimeUnit, n int64) TimeToLive {
	return TimeToLive{TimeUnit: unit, TimeToLive: n}
}

// ExpiresAt returns the instant the expectation stops matching when
// registered at start. The zero time means never.
func (t TimeToLive) ExpiresAt(start time.Time) (time.Time, error) {
	if t.Unlimited {
		return time.Time{}, nil
	}
	d, err := t.TimeUnit.Duration(t.TimeToLive)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(d), nil
}
