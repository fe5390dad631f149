package normalize

import (
	"testing"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

func mustDate(t *testing.T, y int, m time.Month, d int) domain.Date {
	t.Helper()
	date, ok := domain.NewDate(y, m, d)
	if !ok {
		t.Fatalf("invalid test date %d-%d-%d", y, m, d)
	}
	return date
}

func TestParseDate(t *testing.T) {
	feb1 := mustDate(t, 2025, time.February, 1)
	dec15 := mustDate(t, 2025, time.December, 15)

	tests := []struct {
		name  string
		input string
		today domain.Date
		want  string // "" means nil
	}{
		{name: "abbreviated month with dot", input: "28 Janv.", today: feb1, want: "2025-01-28"},
		{name: "ordinal first", input: "1er mars", today: feb1, want: "2025-03-01"},
		{name: "weekday prefix", input: "samedi 28 juin", today: feb1, want: "2025-06-28"},
		{name: "accented month with year", input: "15 févr. 2026", today: feb1, want: "2026-02-15"},
		{name: "full month name", input: "3 décembre", today: feb1, want: "2025-12-03"},
		{name: "today", input: "Aujourd'hui", today: feb1, want: "2025-02-01"},
		{name: "today typographic apostrophe", input: "Aujourd’hui", today: feb1, want: "2025-02-01"},
		{name: "tomorrow", input: "Demain", today: feb1, want: "2025-02-02"},
		{name: "day after tomorrow", input: "Après-demain", today: feb1, want: "2025-02-03"},
		{name: "rolls over to next year", input: "10 janv", today: dec15, want: "2026-01-10"},
		{name: "recent past stays in year", input: "20 nov", today: dec15, want: "2025-11-20"},
		{name: "day range takes first day", input: "Du 12 au 14 mars", today: feb1, want: "2025-03-12"},
		{name: "day range with year", input: "du 12 au 14 mars 2026", today: feb1, want: "2026-03-12"},
		{name: "dashed day range", input: "12-14 juin", today: feb1, want: "2025-06-12"},
		{name: "range across months", input: "du 28 févr. au 2 mars", today: feb1, want: "2025-02-28"},
		{name: "iso", input: "2025-06-14", today: feb1, want: "2025-06-14"},
		{name: "iso timestamp", input: "2025-06-14T10:00:00+02:00", today: feb1, want: "2025-06-14"},
		{name: "numeric", input: "14/06/2025", today: feb1, want: "2025-06-14"},
		{name: "empty", input: "", today: feb1},
		{name: "no date", input: "bientôt", today: feb1},
		{name: "impossible day", input: "31 févr", today: feb1},
		{name: "ambiguous month prefix", input: "12 jui", today: feb1},
		{name: "invalid iso", input: "2025-13-01", today: feb1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.input, tt.today)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("ParseDate(%q) = %s, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseDate(%q) = nil, want %s", tt.input, tt.want)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLookupMonth(t *testing.T) {
	tests := map[string]time.Month{
		"janv":     time.January,
		"fevr":     time.February,
		"mars":     time.March,
		"avr":      time.April,
		"mai":      time.May,
		"juin":     time.June,
		"juil":     time.July,
		"aout":     time.August,
		"sept":     time.September,
		"oct":      time.October,
		"nov":      time.November,
		"decembre": time.December,
	}
	for token, want := range tests {
		got, ok := lookupMonth(token)
		if !ok || got != want {
			t.Errorf("lookupMonth(%q) = %v, %v; want %v", token, got, ok, want)
		}
	}

	for _, token := range []string{"ju", "jui", "ma", "xyz", "janvierr"} {
		if _, ok := lookupMonth(token); ok {
			t.Errorf("lookupMonth(%q) should fail", token)
		}
	}
}
