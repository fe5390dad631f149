package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clockRe   = regexp.MustCompile(`\b(\d{1,2}) ?(?:h|:) ?(\d{2})?`)
	isoTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[Tt ](\d{2}):(\d{2})`)
)

// ParseTimeRange extracts start and end times as HH:MM from "à 21h00",
// "de 14h30 à 18h00", "21h", "14:30". Out-of-range values (hour > 23 or
// minute > 59) come back empty. An ISO timestamp yields its clock time as start only.
func ParseTimeRange(s string) (start, end string) {
	if m := isoTimeRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return formatClock(m[1], m[2]), ""
	}
	text := normalizeText(s)
	if text == "" {
		return "", ""
	}
	matches := clockRe.FindAllStringSubmatch(text, 2)
	if len(matches) == 0 {
		return "", ""
	}
	start = formatClock(matches[0][1], matches[0][2])
	if len(matches) > 1 {
		end = formatClock(matches[1][1], matches[1][2])
	}
	return start, end
}

func formatClock(h, m string) string {
	hour, err := strconv.Atoi(h)
	if err != nil {
		return ""
	}
	minute := 0
	if m != "" {
		if minute, err = strconv.Atoi(m); err != nil {
			return ""
		}
	}
	if hour > 23 || minute > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
