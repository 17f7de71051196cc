package task

import (
	"fmt"
	"strings"
	"time"
)

// layouts the classifier is allowed to emit for args.time, tried in order.
// RFC 3339 is what the prompt asks for; the rest absorb common model drift.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// clockLayouts are bare times of day, resolved against the reference day.
var clockLayouts = []string{"15:04:05", "15:04"}

// ParseScheduledTime resolves a classifier-supplied time string into an
// absolute timestamp. Bare clock times resolve to the next occurrence after
// now. Returns an error when nothing matches; callers convert that into a
// user-facing failure string.
func ParseScheduledTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return t, nil
		}
	}

	for _, layout := range clockLayouts {
		t, err := time.ParseInLocation(layout, raw, now.Location())
		if err != nil {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", raw)
}
