// Package recurrence expands recurrence rules into concrete occurrence instants.
//
// The accepted vocabulary is a small subset of RFC 5545:
//
//	FREQ=DAILY|WEEKLY|MONTHLY|YEARLY   required
//	INTERVAL=n                         optional, n >= 1
//	DTSTART=20240101T090000Z           optional explicit anchor
//
// Parts are separated by ';'. The "RRULE:" prefix and the two-line
// "DTSTART:...\nRRULE:..." form are accepted, as is a bare frequency name
// such as "WEEKLY". Unrecognized keys are ignored.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned for rules that cannot be parsed or use an unsupported frequency.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Frequency is the interval unit of a series.
type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

func parseFrequency(raw string) (Frequency, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DAILY":
		return Daily, true
	case "WEEKLY":
		return Weekly, true
	case "MONTHLY":
		return Monthly, true
	case "YEARLY":
		return Yearly, true
	}
	return 0, false
}

// Rule is a parsed recurrence rule.
type Rule struct {
	Freq     Frequency
	Interval int
	// Start is the explicit anchor carried by the rule, if any.
	Start *time.Time
}

var startLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
	time.RFC3339Nano,
}

// Parse reads a rule string.
func Parse(raw string) (Rule, error) {
	rule := Rule{Interval: 1}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Rule{}, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}

	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "DTSTART:") || strings.HasPrefix(upper, "DTSTART;") {
			start, err := parseStartProperty(line)
			if err != nil {
				return Rule{}, err
			}
			rule.Start = &start
			continue
		}
		if strings.HasPrefix(upper, "RRULE:") {
			line = line[len("RRULE:"):]
		}

		if err := rule.parseParts(line); err != nil {
			return Rule{}, err
		}
	}

	if rule.Freq == 0 {
		return Rule{}, fmt.Errorf("%w: missing FREQ in %q", ErrInvalidRule, raw)
	}
	return rule, nil
}

func (r *Rule) parseParts(line string) error {
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			freq, known := parseFrequency(part)
			if !known {
				return fmt.Errorf("%w: unsupported token %q", ErrInvalidRule, part)
			}
			r.Freq = freq
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			freq, known := parseFrequency(value)
			if !known {
				return fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRule, value)
			}
			r.Freq = freq
		case "INTERVAL":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 1 {
				return fmt.Errorf("%w: bad interval %q", ErrInvalidRule, value)
			}
			r.Interval = n
		case "DTSTART":
			start, err := parseStart(value, time.UTC)
			if err != nil {
				return err
			}
			r.Start = &start
		}
	}
	return nil
}

// parseStartProperty handles "DTSTART:..." and "DTSTART;TZID=Zone:..." lines.
func parseStartProperty(line string) (time.Time, error) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: malformed %q", ErrInvalidRule, line)
	}

	loc := time.UTC
	for _, param := range strings.Split(head, ";")[1:] {
		name, zone, _ := strings.Cut(param, "=")
		if strings.EqualFold(name, "TZID") {
			l, err := time.LoadLocation(zone)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: unknown zone %q", ErrInvalidRule, zone)
			}
			loc = l
		}
	}
	return parseStart(value, loc)
}

func parseStart(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad start %q", ErrInvalidRule, value)
}
