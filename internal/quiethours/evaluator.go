// Package quiethours evaluates a user's quiet-hours window against the
// current instant, deferring non-urgent delivery to the next available
// local time (§4.4).
package quiethours

import (
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// Result is the outcome of checking a user's quiet-hours window.
type Result struct {
	IsQuiet         bool
	NextAvailableAt time.Time
	Config          model.QuietHours
}

// Check evaluates qh against now, converting to the configured timezone and
// handling a midnight-wrapping window (start > end) per §4.4.
func Check(qh model.QuietHours, now time.Time) (Result, error) {
	if !qh.Enabled {
		return Result{IsQuiet: false, Config: qh}, nil
	}

	loc, err := time.LoadLocation(qh.Timezone)
	if err != nil {
		return Result{}, fmt.Errorf("quiethours: load timezone %q: %w", qh.Timezone, err)
	}
	local := now.In(loc)

	startMinutes, err := parseHHMM(qh.Start)
	if err != nil {
		return Result{}, fmt.Errorf("quiethours: parse start: %w", err)
	}
	endMinutes, err := parseHHMM(qh.End)
	if err != nil {
		return Result{}, fmt.Errorf("quiethours: parse end: %w", err)
	}
	currentMinutes := local.Hour()*60 + local.Minute()

	var inside bool
	if startMinutes > endMinutes {
		inside = currentMinutes >= startMinutes || currentMinutes < endMinutes
	} else {
		inside = currentMinutes >= startMinutes && currentMinutes < endMinutes
	}
	if !inside {
		return Result{IsQuiet: false, Config: qh}, nil
	}

	nextAvailable := nextOccurrenceOf(local, endMinutes)
	return Result{IsQuiet: true, NextAvailableAt: nextAvailable.In(now.Location()), Config: qh}, nil
}

// nextOccurrenceOf returns the next local instant at which the clock reads
// endMinutes: later today if that instant has not yet passed, else tomorrow.
// This single rule handles both the wrapping and non-wrapping window shapes.
func nextOccurrenceOf(local time.Time, endMinutes int) time.Time {
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	candidate := dayStart.Add(time.Duration(endMinutes) * time.Minute)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// IsUrgent is re-exported for callers that reach it through this package;
// the authoritative implementation lives with the rest of the preference
// model since it has no time dependency.
func IsUrgent(category model.Category, priority model.Priority, urgent bool) bool {
	return model.IsUrgent(category, priority, urgent)
}

func parseHHMM(s string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return hour*60 + minute, nil
}
