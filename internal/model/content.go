package model

import "time"

// Page is one fetched page: its resolved URL and plaintext content.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code,omitempty"`
}

// SiteContent is the captured content for one site: the main page plus any
// discovered secondary pages (contact/about). This is the cache value type;
// entries older than the cache TTL are treated as absent.
type SiteContent struct {
	SiteKey   string    `json:"site_key"`
	Main      Page      `json:"main"`
	Secondary []Page    `json:"secondary,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CombinedText concatenates the main and secondary page texts for prompt
// assembly, separated by blank lines.
func (c SiteContent) CombinedText() string {
	out := c.Main.Text
	for _, p := range c.Secondary {
		if p.Text != "" {
			out += "\n\n" + p.Text
		}
	}
	return out
}
