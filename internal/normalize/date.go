package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// rolloverDays is how far in the past a year-less date may fall before it is read as next year's.
const rolloverDays = 30

var (
	isoDateRe    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	slashDateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	ordinalRe    = regexp.MustCompile(`\b(\d{1,2})er\b`)
	dayMonthRe   = regexp.MustCompile(`(\d{1,2}) ([a-z]+)(?: (\d{4}))?`)
	dayRangeRe   = regexp.MustCompile(`\b(\d{1,2}) (?:au |a |et )?\d{1,2} ([a-z]+)(?: (\d{4}))?`)
	frenchMonths = [...]string{
		"janvier", "fevrier", "mars", "avril", "mai", "juin",
		"juillet", "aout", "septembre", "octobre", "novembre", "decembre",
	}
)

// ParseDate reads ISO ("2025-01-28"), numeric ("28/01/2025") and French listing dates
// ("28 Janv.", "1er mars 2026", "aujourd'hui", "demain"). A day range such as
// "du 12 au 14 mars" yields its first day. When the year is omitted the current year is
// assumed, then moved forward one year if the result is more than 30 days before today.
// Unparsable input returns nil.
func ParseDate(s string, today domain.Date) *domain.Date {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}

	if m := isoDateRe.FindStringSubmatch(raw); m != nil {
		return dateFromParts(m[1], m[2], m[3])
	}
	if m := slashDateRe.FindStringSubmatch(raw); m != nil {
		return dateFromParts(m[3], m[2], m[1])
	}

	text := normalizeText(raw)
	switch {
	case strings.Contains(text, "apres demain"):
		d := today.AddDays(2)
		return &d
	case strings.Contains(text, "aujourdhui"), strings.Contains(text, "today"):
		d := today
		return &d
	case strings.Contains(text, "demain"), strings.Contains(text, "tomorrow"):
		d := today.AddDays(1)
		return &d
	}

	text = ordinalRe.ReplaceAllString(text, "$1")
	var (
		m     []string
		month time.Month
	)
	// "du 12 au 14 mars" starts on the 12th: the first day borrows the closing month.
	if r := dayRangeRe.FindStringSubmatch(text); r != nil {
		if mo, ok := lookupMonth(r[2]); ok {
			m, month = r, mo
		}
	}
	if m == nil {
		for _, candidate := range dayMonthRe.FindAllStringSubmatch(text, -1) {
			if mo, ok := lookupMonth(candidate[2]); ok {
				m, month = candidate, mo
				break
			}
		}
	}
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])

	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		d, ok := domain.NewDate(year, month, day)
		if !ok {
			return nil
		}
		return &d
	}

	d, ok := domain.NewDate(today.Year, month, day)
	if !ok {
		return nil
	}
	if today.DaysSince(d) > rolloverDays {
		if d, ok = domain.NewDate(today.Year+1, month, day); !ok {
			return nil
		}
	}
	return &d
}

// lookupMonth accepts any unambiguous prefix of at least three letters of a
// French month name: "janv", "fevr", "sept", "juil", "aout", "decembre".
func lookupMonth(token string) (time.Month, bool) {
	if len(token) < 3 {
		return 0, false
	}
	var found time.Month
	for i, name := range frenchMonths {
		if strings.HasPrefix(name, token) {
			if found != 0 {
				return 0, false
			}
			found = time.Month(i + 1)
		}
	}
	return found, found != 0
}

func dateFromParts(y, m, d string) *domain.Date {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	date, ok := domain.NewDate(year, time.Month(month), day)
	if !ok {
		return nil
	}
	return &date
}
