package recurrence

import "time"

// At returns the k-th occurrence of the series anchored at anchor; k=0 is the anchor itself.
// Occurrences are always derived from the anchor, so a month-end anchor clamps in short
// months without drifting in later ones (Jan 31, Feb 29, Mar 31, ...).
func (r Rule) At(anchor time.Time, k int) time.Time {
	n := k * r.interval()
	switch r.Freq {
	case Daily:
		return anchor.AddDate(0, 0, n)
	case Weekly:
		return anchor.AddDate(0, 0, 7*n)
	case Monthly:
		return AddMonthsClamped(anchor, n)
	case Yearly:
		return AddMonthsClamped(anchor, 12*n)
	}
	return anchor
}

// Next returns the first occurrence strictly after the watermark. A nil watermark
// means nothing has been produced yet, in which case the anchor itself is owed.
func (r Rule) Next(anchor time.Time, after *time.Time) time.Time {
	if after == nil || after.Before(anchor) {
		return anchor
	}

	for k := r.lowerBound(anchor, *after); ; k++ {
		if occ := r.At(anchor, k); occ.After(*after) {
			return occ
		}
	}
}

// lowerBound estimates an index not past the wanted occurrence so Next only
// walks a couple of steps regardless of how old the anchor is.
func (r Rule) lowerBound(anchor, after time.Time) int {
	var units int
	switch r.Freq {
	case Daily:
		units = int(after.Sub(anchor) / (24 * time.Hour))
	case Weekly:
		units = int(after.Sub(anchor) / (7 * 24 * time.Hour))
	case Monthly:
		units = monthsBetween(anchor, after)
	case Yearly:
		units = monthsBetween(anchor, after) / 12
	}

	k := units/r.interval() - 1
	if k < 0 {
		return 0
	}
	return k
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// Anchor picks the instant the series is defined relative to: the rule's explicit
// start, else the anchor already pinned on the template, else its due date, else
// its creation time.
func (r Rule) Anchor(pinned, dueDate *time.Time, createdAt time.Time) time.Time {
	switch {
	case r.Start != nil:
		return *r.Start
	case pinned != nil:
		return *pinned
	case dueDate != nil:
		return *dueDate
	default:
		return createdAt
	}
}

// NextOccurrence parses raw and returns the first occurrence after the watermark.
func NextOccurrence(raw string, anchor time.Time, after *time.Time) (time.Time, error) {
	rule, err := Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return rule.Next(rule.Anchor(&anchor, nil, anchor), after), nil
}

// AddMonthsClamped moves t by n calendar months keeping the time of day. When the
// target month is shorter than t's day, the result lands on the target month's last day.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	total := int(month) - 1 + n
	year += floorDiv(total, 12)
	target := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysInMonth(target, year); day > last {
		day = last
	}
	return time.Date(year, target, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthsBetween(from, to time.Time) int {
	fy, fm, _ := from.Date()
	ty, tm, _ := to.Date()
	return (ty-fy)*12 + int(tm) - int(fm)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
