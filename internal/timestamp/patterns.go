// Package timestamp recognizes timestamp strings and maintains the
// per-archive timestamp range index used to prune searches.
package timestamp

import (
	"time"
)

// Pattern parses one timestamp layout. parse returns the time and the number
// of bytes consumed from the start of s.
type Pattern struct {
	Name  string
	parse func(s string, now time.Time) (time.Time, int, bool)
}

// Patterns is an ordered registry of timestamp layouts. It is built once by
// the caller and passed to whatever needs to recognize dates; it is safe for
// concurrent use.
//
// Recognized layouts, in priority order:
//   - RFC 3339 / ISO 8601:   2024-01-15T10:30:45.123456Z
//   - ISO 8601 local time:   2024-01-15T10:30:45.123
//   - Apple unified log:     2024-01-15 10:30:45.123456-0800
//   - ISO date:              2024-01-15
//   - Common Log Format:     02/Jan/2006:15:04:05 -0700 (brackets optional)
//   - Go/Ruby datestamp:     2024/01/15 10:30:45
//   - Syslog BSD (RFC 3164): Jan  5 15:04:02
//   - Ctime / BSD:           Fri Feb 13 17:49:50.028 2026
type Patterns struct {
	patterns []Pattern
	now      func() time.Time
}

// NewPatterns returns the default registry.
func NewPatterns() *Patterns {
	return &Patterns{
		patterns: []Pattern{
			{Name: "rfc3339", parse: tryRFC3339},
			{Name: "iso8601-local", parse: tryISOLocal},
			{Name: "apple-unified", parse: tryAppleUnified},
			{Name: "iso-date", parse: tryISODate},
			{Name: "clf", parse: tryCLF},
			{Name: "go-ruby", parse: tryGoRuby},
			{Name: "syslog-bsd", parse: trySyslogBSD},
			{Name: "ctime", parse: tryCtime},
		},
		now: time.Now,
	}
}

// Parse matches the whole of s against the registered layouts and returns
// the time and the name of the first layout that matched.
func (p *Patterns) Parse(s string) (time.Time, string, bool) {
	now := p.now()
	for _, pat := range p.patterns {
		if ts, n, ok := pat.parse(s, now); ok && n == len(s) {
			return ts, pat.Name, true
		}
	}
	return time.Time{}, "", false
}

// EpochMillis parses s and returns milliseconds since the Unix epoch.
func (p *Patterns) EpochMillis(s string) (int64, bool) {
	ts, _, ok := p.Parse(s)
	if !ok {
		return 0, false
	}
	return ts.UnixMilli(), true
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isUpperAlpha(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLowerAlpha(c byte) bool { return c >= 'a' && c <= 'z' }

// hasYearDash reports whether r starts with YYYY-MM-DD.
func hasYearDash(r string) bool {
	return len(r) >= 10 &&
		isDigit(r[0]) && isDigit(r[1]) && isDigit(r[2]) && isDigit(r[3]) &&
		r[4] == '-' && isDigit(r[5]) && isDigit(r[6]) &&
		r[7] == '-' && isDigit(r[8]) && isDigit(r[9])
}

// scanFraction returns the index past an optional ".NNN" at pos.
func scanFraction(r string, pos int) int {
	if pos < len(r) && r[pos] == '.' {
		pos++
		for pos < len(r) && isDigit(r[pos]) {
			pos++
		}
	}
	return pos
}

// fractionLayout returns a layout suffix for n fractional digits.
func fractionLayout(n int) string {
	if n <= 0 {
		return ""
	}
	const frac = ".000000000"
	if n < len(frac)-1 {
		return frac[:n+1]
	}
	return frac
}

// tryRFC3339 parses RFC 3339 / ISO 8601 timestamps with a zone.
func tryRFC3339(r string, _ time.Time) (time.Time, int, bool) {
	if !hasYearDash(r) || len(r) < 20 || r[10] != 'T' || r[13] != ':' || r[16] != ':' {
		return time.Time{}, 0, false
	}
	end := scanFraction(r, 19)
	if end >= len(r) {
		return time.Time{}, 0, false
	}
	switch r[end] {
	case 'Z':
		end++
	case '+', '-':
		if end+6 > len(r) {
			return time.Time{}, 0, false
		}
		end += 6
	default:
		return time.Time{}, 0, false
	}
	ts, err := time.Parse(time.RFC3339Nano, r[:end])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, end, true
}

// tryISOLocal parses ISO 8601 timestamps without a zone, taken as UTC.
func tryISOLocal(r string, _ time.Time) (time.Time, int, bool) {
	if !hasYearDash(r) || len(r) < 19 || r[10] != 'T' || r[13] != ':' || r[16] != ':' {
		return time.Time{}, 0, false
	}
	end := scanFraction(r, 19)
	layout := "2006-01-02T15:04:05" + fractionLayout(end-20)
	ts, err := time.Parse(layout, r[:end])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, end, true
}

// tryAppleUnified parses "2024-01-15 10:30:45.123456-0800"; fraction and
// zone are optional.
func tryAppleUnified(r string, _ time.Time) (time.Time, int, bool) {
	if !hasYearDash(r) || len(r) < 19 || r[10] != ' ' || r[13] != ':' || r[16] != ':' {
		return time.Time{}, 0, false
	}
	end := scanFraction(r, 19)
	layout := "2006-01-02 15:04:05" + fractionLayout(end-20)
	if end+5 <= len(r) && (r[end] == '+' || r[end] == '-') &&
		isDigit(r[end+1]) && isDigit(r[end+2]) && isDigit(r[end+3]) && isDigit(r[end+4]) {
		end += 5
		layout += "-0700"
	}
	ts, err := time.Parse(layout, r[:end])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, end, true
}

// tryISODate parses a bare "2024-01-15" as midnight UTC.
func tryISODate(r string, _ time.Time) (time.Time, int, bool) {
	if !hasYearDash(r) {
		return time.Time{}, 0, false
	}
	ts, err := time.Parse("2006-01-02", r[:10])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, 10, true
}

// tryCLF parses "[02/Jan/2006:15:04:05 -0700]", with or without brackets.
func tryCLF(r string, _ time.Time) (time.Time, int, bool) {
	start := 0
	if len(r) > 0 && r[0] == '[' {
		start = 1
	}
	const layout = "02/Jan/2006:15:04:05 -0700"
	if len(r) < start+len(layout) {
		return time.Time{}, 0, false
	}
	body := r[start : start+len(layout)]
	if body[2] != '/' || body[6] != '/' || body[11] != ':' {
		return time.Time{}, 0, false
	}
	ts, err := time.Parse(layout, body)
	if err != nil {
		return time.Time{}, 0, false
	}
	end := start + len(layout)
	if start == 1 {
		if end >= len(r) || r[end] != ']' {
			return time.Time{}, 0, false
		}
		end++
	}
	return ts, end, true
}

// tryGoRuby parses "2024/01/15 10:30:45".
func tryGoRuby(r string, _ time.Time) (time.Time, int, bool) {
	if len(r) < 19 || r[4] != '/' || r[7] != '/' || r[10] != ' ' || r[13] != ':' || r[16] != ':' {
		return time.Time{}, 0, false
	}
	ts, err := time.Parse("2006/01/02 15:04:05", r[:19])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, 19, true
}

var monthPrefixes = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

var weekdayPrefixes = map[string]bool{
	"Mon": true, "Tue": true, "Wed": true, "Thu": true,
	"Fri": true, "Sat": true, "Sun": true,
}

func isMonth(r string) bool {
	if len(r) < 3 || !isUpperAlpha(r[0]) || !isLowerAlpha(r[1]) || !isLowerAlpha(r[2]) {
		return false
	}
	_, ok := monthPrefixes[r[:3]]
	return ok
}

// trySyslogBSD parses "Jan  5 15:04:02". There is no year: the current
// year is assumed, rolling back one year for dates more than a day ahead.
func trySyslogBSD(r string, now time.Time) (time.Time, int, bool) {
	if len(r) < 15 || !isMonth(r) || r[3] != ' ' || r[6] != ' ' || r[9] != ':' || r[12] != ':' {
		return time.Time{}, 0, false
	}
	for _, layout := range []string{"Jan  2 15:04:05", "Jan 02 15:04:05"} {
		ts, err := time.Parse(layout, r[:15])
		if err != nil {
			continue
		}
		ts = ts.AddDate(now.Year(), 0, 0)
		if ts.After(now.Add(24 * time.Hour)) {
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts, 15, true
	}
	return time.Time{}, 0, false
}

// tryCtime parses "Fri Feb 13 17:49:50 2026", optionally with fractional
// seconds and a padded day.
func tryCtime(r string, _ time.Time) (time.Time, int, bool) {
	if len(r) < 24 || !weekdayPrefixes[r[:3]] || r[3] != ' ' || !isMonth(r[4:]) || r[7] != ' ' {
		return time.Time{}, 0, false
	}
	// Day is "13" or " 5".
	if r[10] != ' ' || r[13] != ':' || r[16] != ':' {
		return time.Time{}, 0, false
	}
	end := scanFraction(r, 19)
	if end+5 > len(r) || r[end] != ' ' {
		return time.Time{}, 0, false
	}
	for i := end + 1; i < end+5; i++ {
		if !isDigit(r[i]) {
			return time.Time{}, 0, false
		}
	}
	frac := fractionLayout(end - 20)
	day := "02"
	if r[8] == ' ' {
		day = "_2"
	}
	layout := "Mon Jan " + day + " 15:04:05" + frac + " 2006"
	ts, err := time.Parse(layout, r[:end+5])
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, end + 5, true
}
