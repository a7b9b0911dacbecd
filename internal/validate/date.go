package validate

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order when the input is not a relative phrase.
// Unpadded layouts accept both "5/1/2026" and "05/01/2026".
var dateLayouts = []string{
	"2006-01-02",
	"2-1-2006",
	"2/1/2006",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"2-1-06",
	"2/1/06",
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// DateOptions tunes [Date]. The zero value allows past dates and caps the
// future at 90 days, with "now" taken from the wall clock.
type DateOptions struct {
	// DisallowPast rejects dates before today.
	DisallowPast bool

	// MaxFutureDays caps how far ahead a date may be. Zero means 90.
	// Negative disables the cap.
	MaxFutureDays int

	// Now anchors relative phrases ("tomorrow", "friday"). Zero means
	// time.Now(). Set in tests for determinism.
	Now time.Time
}

// Date validates a spoken or written date and normalises it to YYYY-MM-DD.
// Relative phrases (today, tomorrow, day after tomorrow, next week) and bare
// weekday names are resolved against opts.Now; a weekday always means the
// next occurrence, so "monday" said on a Monday means a week ahead.
func Date(raw string, opts DateOptions) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Date is required"}
	}
	input := strings.ToLower(strings.TrimSpace(raw))

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	maxFuture := opts.MaxFutureDays
	if maxFuture == 0 {
		maxFuture = 90
	}

	// Relative phrases. "day after tomorrow" must be checked before
	// "tomorrow" since the latter is a substring.
	relative := []struct {
		phrase string
		days   int
	}{
		{"day after tomorrow", 2},
		{"tomorrow", 1},
		{"today", 0},
		{"next week", 7},
	}
	for _, r := range relative {
		if strings.Contains(input, r.phrase) {
			return Outcome{Result: Valid, Value: today.AddDate(0, 0, r.days).Format("2006-01-02")}
		}
	}

	// Weekday names resolve to the next such day.
	for name, wd := range weekdays {
		if strings.Contains(input, name) {
			ahead := int(wd - today.Weekday())
			if ahead <= 0 {
				ahead += 7
			}
			return Outcome{Result: Valid, Value: today.AddDate(0, 0, ahead).Format("2006-01-02")}
		}
	}

	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, strings.TrimSpace(raw), now.Location())
		if err != nil {
			continue
		}
		parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())

		if opts.DisallowPast && parsed.Before(today) {
			return Outcome{Result: Invalid, Message: "Date cannot be in the past"}
		}
		if maxFuture > 0 {
			if ahead := int(parsed.Sub(today).Hours() / 24); ahead > maxFuture {
				return Outcome{Result: Invalid, Message: fmt.Sprintf("Date cannot be more than %d days in the future", maxFuture)}
			}
		}
		return Outcome{Result: Valid, Value: parsed.Format("2006-01-02")}
	}

	return Outcome{Result: Invalid, Message: "Could not understand the date. Please say it as day, month, year"}
}
