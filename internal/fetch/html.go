package fetch

import (
	"net/url"
	"regexp"
	"strings"
)

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> from HTML.
func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace. The result is plaintext suitable for extraction.
func stripHTML(html string) string {
	// Remove script, style, nav, footer blocks entirely.
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	// Strip remaining HTML tags.
	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	// Decode common HTML entities.
	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	// Collapse runs of spaces and excess blank lines.
	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

var anchorRe = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)

var contactKeywords = []string{"contact"}
var aboutKeywords = []string{"about", "team", "our-story", "our story", "who we are"}

// discoverLinks scans HTML for at most one contact link and one about/team
// link on the same origin as base. Links are matched by anchor text or path
// keyword; the first match of each kind wins.
func discoverLinks(base *url.URL, body []byte) []string {
	var contact, about string

	for _, m := range anchorRe.FindAllSubmatch(body, -1) {
		href := strings.TrimSpace(string(m[1]))
		text := strings.ToLower(stripHTML(string(m[2])))

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(resolved.Host, base.Host) {
			continue
		}

		haystack := text + " " + strings.ToLower(resolved.Path)
		if contact == "" && matchesAny(haystack, contactKeywords) {
			contact = resolved.String()
		} else if about == "" && matchesAny(haystack, aboutKeywords) {
			about = resolved.String()
		}
		if contact != "" && about != "" {
			break
		}
	}

	var links []string
	if contact != "" {
		links = append(links, contact)
	}
	if about != "" && about != contact {
		links = append(links, about)
	}
	return links
}

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
