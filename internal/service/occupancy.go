package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

// ParseClock converts "HH:MM" (or "HH:MM:SS", seconds ignored) into minutes
// since midnight. "24:00" is the end of the day (1440), so a session can run
// until midnight. Anything else is a ParseFailure.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, parseFailure(value, "expected HH:MM")
	}
	hours, ok := parseDigits(parts[0], 2)
	if !ok || hours > 24 {
		return 0, parseFailure(value, "hours out of range")
	}
	minutes, ok := parseDigits(parts[1], 2)
	if !ok || minutes > 59 {
		return 0, parseFailure(value, "minutes out of range")
	}
	seconds := 0
	if len(parts) == 3 {
		if seconds, ok = parseDigits(parts[2], 2); !ok || seconds > 59 {
			return 0, parseFailure(value, "seconds out of range")
		}
	}
	if hours == 24 && (minutes != 0 || seconds != 0) {
		return 0, parseFailure(value, "only 24:00 is allowed past 23:59")
	}
	return hours*60 + minutes, nil
}

// parseDigits reads a base-10 number of one to max ASCII digits.
func parseDigits(s string, max int) (int, bool) {
	if len(s) == 0 || len(s) > max {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func parseFailure(value, detail string) error {
	return appErrors.Clone(appErrors.ErrParseFailure, fmt.Sprintf("invalid time %q: %s", value, detail))
}

// Contains reports whether now falls inside the subject's weekly window:
// same weekday, start inclusive, end exclusive, minute granularity.
func Contains(subject models.Subject, now time.Time) (bool, error) {
	start, err := ParseClock(subject.StartTime)
	if err != nil {
		return false, err
	}
	end, err := ParseClock(subject.EndTime)
	if err != nil {
		return false, err
	}
	if subject.Day != now.Weekday().String() {
		return false, nil
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	return start <= nowMinutes && nowMinutes < end, nil
}

// Occupying returns every subject whose window contains now, in collection
// order. Subjects with malformed times are left out and reported through the
// returned error; the valid matches are still returned.
func Occupying(subjects []models.Subject, now time.Time) ([]models.Subject, error) {
	matches := make([]models.Subject, 0)
	var errs []error
	for _, subject := range subjects {
		ok, err := Contains(subject, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("subject %s: %w", subject.ID, err))
			continue
		}
		if ok {
			matches = append(matches, subject)
		}
	}
	return matches, errors.Join(errs...)
}

// FormatClock renders "HH:MM" as a 12-hour label such as "9:05 AM".
func FormatClock(value string) (string, error) {
	minutes, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	hours := minutes / 60 % 24
	suffix := "AM"
	if hours >= 12 {
		suffix = "PM"
	}
	display := hours % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d %s", display, minutes%60, suffix), nil
}
