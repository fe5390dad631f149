package normalize

import (
	"regexp"
	"strings"
)

var cityPostalRe = regexp.MustCompile(`^(.+?)\s*\((\d{5})\)$`)

// SplitCityPostal splits "La Roche-sur-Yon (85000)" into city and postal code.
// Anything else is returned whole as the city.
func SplitCityPostal(s string) (city, postal string) {
	s = strings.TrimSpace(s)
	if m := cityPostalRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	return s, ""
}
