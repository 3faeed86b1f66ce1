// Package datewindow resolves natural-language time expressions into bounded
// absolute date ranges. Resolution is pure: the caller supplies the reference
// clock and timezone, so the same inputs always produce the same window.
package datewindow

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxLookbackDays caps how far into the past a resolved window may reach.
// This is policy, not configuration.
const MaxLookbackDays = 40

var (
	ErrUnparseable    = errors.New("unparseable time window")
	ErrBeyondLookback = fmt.Errorf("time window is older than the last %d days", MaxLookbackDays)
)

// Window is an inclusive day range in a fixed timezone. Start is midnight of
// the first day, End is the last instant covered (23:59:59 of the last day,
// or the reference time itself for windows ending "now").
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartDay() time.Time { return startOfDay(w.Start) }
func (w Window) EndDay() time.Time   { return startOfDay(w.End) }

// Contains reports whether ts falls inside the window, compared on UTC day
// bounds the way Gmail internalDate timestamps are filtered.
func (w Window) Contains(ts time.Time) bool {
	lo := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
	hi := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 23, 59, 59,
		int(time.Second-time.Nanosecond), time.UTC)
	return !ts.Before(lo) && !ts.After(hi)
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

var (
	pastWeeksRe  = regexp.MustCompile(`^(?:last|past)\s+(\d+)\s+weeks?$`)
	pastDaysRe   = regexp.MustCompile(`^(?:last|past)\s+(\d+)\s+days?$`)
	pastMonthsRe = regexp.MustCompile(`^(?:last|past)\s+(\d+)\s+months?$`)
	monthYearRe  = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{4})$`)
	ordinalRe    = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)`)
	rangeSepRe   = regexp.MustCompile(`\s+(?:to|through|until)\s+`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

var monthAliases = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		monthAliases[name] = m
		monthAliases[name[:3]] = m
	}
}

// Resolve turns a phrase like "yesterday", "past 2 weeks" or "July 1 to July 7"
// into a Window relative to now in loc. The lookback clamp is applied
// unconditionally and silently: it narrows the window, never extends it.
// A window that lies entirely beyond the lookback horizon is ErrBeyondLookback.
func Resolve(phrase string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	original := strings.TrimSpace(phrase)
	if original == "" {
		return Window{}, fmt.Errorf("%w: empty phrase", ErrUnparseable)
	}
	tw := strings.ToLower(original)
	localNow := now.In(loc)
	today := startOfDay(localNow)

	switch tw {
	case "today":
		return clamp(Window{Start: today, End: localNow}, today)
	case "yesterday", "yday":
		day := today.AddDate(0, 0, -1)
		return clamp(dayRange(day, day), today)
	case "this week":
		start := today.AddDate(0, 0, -weekdayIndex(today))
		return clamp(dayRange(start, today), today)
	case "last week":
		startOfThisWeek := today.AddDate(0, 0, -weekdayIndex(today))
		end := startOfThisWeek.AddDate(0, 0, -1)
		return clamp(dayRange(end.AddDate(0, 0, -6), end), today)
	case "this month":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return clamp(dayRange(start, today), today)
	case "last month":
		firstThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		lastPrev := firstThisMonth.AddDate(0, 0, -1)
		start := time.Date(lastPrev.Year(), lastPrev.Month(), 1, 0, 0, 0, 0, loc)
		return clamp(dayRange(start, lastPrev), today)
	}

	if m := pastWeeksRe.FindStringSubmatch(tw); m != nil {
		n := boundInt(m[1], 1, 12)
		return clamp(dayRange(today.AddDate(0, 0, -7*n), today), today)
	}
	if m := pastDaysRe.FindStringSubmatch(tw); m != nil {
		n := boundInt(m[1], 1, MaxLookbackDays)
		return clamp(dayRange(today.AddDate(0, 0, -n), today), today)
	}
	if m := pastMonthsRe.FindStringSubmatch(tw); m != nil {
		n := boundInt(m[1], 1, 3)
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -n, 0)
		return clamp(dayRange(start, today), today)
	}

	if parts := splitRange(original); len(parts) == 2 {
		start, okStart := parseSingleDay(parts[0], today, loc)
		end, okEnd := parseSingleDay(parts[1], today, loc)
		if okStart && okEnd {
			if end.Before(start) {
				start, end = end, start
			}
			return clamp(dayRange(start, end), today)
		}
	}

	if month, ok := monthAliases[tw]; ok {
		year := today.Year()
		if month > today.Month() {
			year--
		}
		start, end := monthRange(month, year, loc)
		return clamp(dayRange(start, end), today)
	}

	if m := monthYearRe.FindStringSubmatch(original); m != nil {
		if month, ok := monthAliases[strings.ToLower(m[1])]; ok {
			year, _ := strconv.Atoi(m[2])
			start, end := monthRange(month, year, loc)
			return clamp(dayRange(start, end), today)
		}
	}

	if day, ok := parseSingleDay(original, today, loc); ok {
		return clamp(dayRange(day, day), today)
	}

	return Window{}, fmt.Errorf("%w: %q (try \"yesterday\", \"last week\", or a date like \"July 14\")", ErrUnparseable, original)
}

// ResolveDay resolves a single-day reference for calendar lookups: today,
// yesterday, a weekday name (most recent past occurrence, never today) or an
// ISO date. Unrecognized refs fall back to today.
func ResolveDay(ref string, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	r := strings.ToLower(strings.TrimSpace(ref))
	switch r {
	case "", "today":
		return today
	case "yesterday", "yday":
		return today.AddDate(0, 0, -1)
	}
	for i, name := range weekdayNames {
		if r == name {
			delta := (weekdayIndex(today) - i + 7) % 7
			if delta == 0 {
				delta = 7
			}
			return today.AddDate(0, 0, -delta)
		}
	}
	if d, err := time.ParseInLocation("2006-01-02", r, loc); err == nil {
		return d
	}
	return today
}

// DaypartRange returns the time span for a daypart on the given day:
// morning 08:00-12:00, afternoon 12:00-17:00, evening 17:00-21:00,
// anything else the whole day.
func DaypartRange(day time.Time, part string, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
	}
	switch strings.ToLower(strings.TrimSpace(part)) {
	case "morning":
		return at(8, 0), at(12, 0)
	case "afternoon":
		return at(12, 0), at(17, 0)
	case "evening":
		return at(17, 0), at(21, 0)
	default:
		return at(0, 0), endOfDay(day)
	}
}

func clamp(w Window, today time.Time) (Window, error) {
	earliest := today.AddDate(0, 0, -MaxLookbackDays)
	if w.End.Before(earliest) {
		return Window{}, ErrBeyondLookback
	}
	if w.Start.Before(earliest) {
		w.Start = earliest
	}
	if w.End.After(endOfDay(today)) {
		w.End = endOfDay(today)
	}
	if w.Start.After(w.End) {
		return Window{}, fmt.Errorf("%w: window inverted after clamping", ErrUnparseable)
	}
	return w, nil
}

func dayRange(startDay, endDay time.Time) Window {
	return Window{Start: startOfDay(startDay), End: endOfDay(endDay)}
}

func monthRange(month time.Month, year int, loc *time.Location) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	return first, last
}

var dateLayoutsWithYear = []string{
	"2006-01-02", "2006/01/02",
	"2 January 2006", "January 2 2006", "2 Jan 2006", "Jan 2 2006",
	"January 2, 2006", "Jan 2, 2006",
}

var dateLayoutsWithoutYear = []string{
	"January 2", "Jan 2", "2 January", "2 Jan",
}

func parseSingleDay(value string, today time.Time, loc *time.Location) (time.Time, bool) {
	cleaned := ordinalRe.ReplaceAllString(strings.TrimSpace(value), "$1")
	cleaned = strings.ReplaceAll(cleaned, ",", " ")
	cleaned = spacesRe.ReplaceAllString(cleaned, " ")
	if cleaned == "" {
		return time.Time{}, false
	}
	normalized := titleWords(cleaned)
	for _, layout := range dateLayoutsWithYear {
		if d, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return startOfDay(d), true
		}
	}
	for _, layout := range dateLayoutsWithoutYear {
		if d, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			candidate := time.Date(today.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
			if candidate.After(today) {
				candidate = candidate.AddDate(-1, 0, 0)
			}
			return candidate, true
		}
	}
	if month, ok := monthAliases[strings.ToLower(cleaned)]; ok {
		year := today.Year()
		if month > today.Month() {
			year--
		}
		return time.Date(year, month, 1, 0, 0, 0, 0, loc), true
	}
	if m := monthYearRe.FindStringSubmatch(cleaned); m != nil {
		if month, ok := monthAliases[strings.ToLower(m[1])]; ok {
			year, _ := strconv.Atoi(m[2])
			return time.Date(year, month, 1, 0, 0, 0, 0, loc), true
		}
	}
	if d, err := time.ParseInLocation("02/01/2006", cleaned, loc); err == nil {
		return startOfDay(d), true
	}
	return time.Time{}, false
}

func splitRange(s string) []string {
	if parts := rangeSepRe.Split(s, -1); len(parts) == 2 {
		return trimAll(parts)
	}
	if parts := strings.Split(s, "-"); len(parts) == 2 {
		return trimAll(parts)
	}
	return nil
}

func trimAll(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil
		}
		out = append(out, p)
	}
	return out
}

var weekdayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// weekdayIndex maps Monday to 0 .. Sunday to 6. Weeks start on Monday.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func boundInt(raw string, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return lo
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
