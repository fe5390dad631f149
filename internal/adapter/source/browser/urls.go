package browser

import (
	"net/url"
	"strconv"
	"strings"
)

// RegionURLs resolves a comma-separated list of region tokens. A token may be a full
// URL, an absolute path on base, or a slug rendered into template ({base_url}, {region}).
// No token yields "<base>/evenements".
func RegionURLs(base, template, regions string) []string {
	base = strings.TrimRight(base, "/")
	var out []string
	for _, token := range strings.Split(regions, ",") {
		token = strings.TrimSpace(token)
		switch {
		case token == "":
			continue
		case strings.HasPrefix(token, "http://"), strings.HasPrefix(token, "https://"):
			out = append(out, strings.TrimRight(token, "/"))
		case strings.HasPrefix(token, "/"):
			out = append(out, base+token)
		default:
			u := strings.ReplaceAll(template, "{base_url}", base)
			u = strings.ReplaceAll(u, "{region}", url.PathEscape(token))
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		out = append(out, base+"/evenements")
	}
	return out
}

// PageURL returns the URL of page n (1-based). Page 1 is regionURL unchanged.
func PageURL(regionURL string, page int) string {
	if page <= 1 {
		return regionURL
	}
	u, err := url.Parse(regionURL)
	if err != nil {
		sep := "?"
		if strings.Contains(regionURL, "?") {
			sep = "&"
		}
		return regionURL + sep + "page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// PagePlan lists maxPages page URLs per region, regions in input order.
func PagePlan(regionURLs []string, maxPages int) [][]string {
	if maxPages < 1 {
		maxPages = 1
	}
	plan := make([][]string, 0, len(regionURLs))
	for _, r := range regionURLs {
		pages := make([]string, 0, maxPages)
		for p := 1; p <= maxPages; p++ {
			pages = append(pages, PageURL(r, p))
		}
		plan = append(plan, pages)
	}
	return plan
}

// Flatten concatenates a plan region by region.
func Flatten(plan [][]string) []string {
	var out []string
	for _, pages := range plan {
		out = append(out, pages...)
	}
	return out
}
