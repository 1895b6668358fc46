// Package expiry computes cash-voucher payment deadlines in the merchant's
// timezone.
package expiry

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTZ      = "America/Mexico_City"
	DefaultTTLDays = 3
	maxTTLDays     = 30
)

var defaultLoc = loadDefault()

func loadDefault() *time.Location {
	loc, err := time.LoadLocation(DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SetDefaultLocation sets the location deadlines are computed in. nil is
// ignored.
func SetDefaultLocation(loc *time.Location) {
	if loc != nil {
		defaultLoc = loc
	}
}

func DefaultLocation() *time.Location {
	return defaultLoc
}

// LoadLocation resolves an IANA name, falling back to the current default for
// an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return defaultLoc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// ValidateTTL checks a voucher lifetime in days.
func ValidateTTL(days int) error {
	if days < 1 || days > maxTTLDays {
		return fmt.Errorf("voucher ttl must be 1..%d days (got %d)", maxTTLDays, days)
	}
	return nil
}

// TTLOrDefault returns days, or DefaultTTLDays when days is not positive.
func TTLOrDefault(days int) int {
	if days > 0 {
		return days
	}
	return DefaultTTLDays
}

// VoucherDeadline returns the last instant of the day that is days calendar
// days after issue, in the default location.
func VoucherDeadline(issue time.Time, days int) time.Time {
	return EndOfDay(issue.AddDate(0, 0, days), defaultLoc)
}

// EndOfDay returns 23:59:59.999999999 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = defaultLoc
	}
	t = t.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return next.Add(-time.Nanosecond)
}

// IsExpired reports whether at is strictly after deadline.
func IsExpired(deadline, at time.Time) bool {
	return at.After(deadline)
}
