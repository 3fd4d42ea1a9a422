package fetch

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Acme Plumbing", extractTitle([]byte(`<html><head><title>Acme Plumbing</title></head></html>`)))
	assert.Equal(t, "Acme", extractTitle([]byte(`<TITLE lang="en"> Acme </TITLE>`)))
	assert.Empty(t, extractTitle([]byte(`<html><body>no title</body></html>`)))
}

func TestStripHTML(t *testing.T) {
	html := `<html><head>
		<script>var x = 1;</script>
		<style>body { color: red; }</style>
	</head><body>
		<nav><a href="/">Home</a></nav>
		<h1>Acme &amp; Sons</h1>
		<p>Quality   plumbing&nbsp;since 1995.</p>
		<footer>Copyright</footer>
	</body></html>`

	text := stripHTML(html)

	assert.Contains(t, text, "Acme & Sons")
	assert.Contains(t, text, "Quality plumbing since 1995.")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Home")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "<")
}

func TestDiscoverLinks(t *testing.T) {
	base, err := url.Parse("https://acme.example/")
	require.NoError(t, err)

	body := []byte(`<html><body>
		<a href="/services">Services</a>
		<a href="/contact-us">Get in touch</a>
		<a href="/contact">Contact</a>
		<a href="/about">About Us</a>
		<a href="/team">Meet the Team</a>
		<a href="https://other.example/contact">External Contact</a>
		<a href="mailto:hi@acme.example">Email</a>
	</body></html>`)

	links := discoverLinks(base, body)

	// At most one contact and one about link, first match wins.
	require.Len(t, links, 2)
	assert.Equal(t, "https://acme.example/contact-us", links[0])
	assert.Equal(t, "https://acme.example/about", links[1])
}

func TestDiscoverLinks_MatchesByAnchorText(t *testing.T) {
	base, _ := url.Parse("https://acme.example/")

	body := []byte(`<html><body>
		<a href="/reach-us">Contact our office</a>
	</body></html>`)

	links := discoverLinks(base, body)
	require.Len(t, links, 1)
	assert.Equal(t, "https://acme.example/reach-us", links[0])
}

func TestDiscoverLinks_IgnoresOtherOrigins(t *testing.T) {
	base, _ := url.Parse("https://acme.example/")

	body := []byte(`<html><body>
		<a href="https://linkedin.example/company/acme/about">About</a>
		<a href="https://other.example/contact">Contact</a>
	</body></html>`)

	assert.Empty(t, discoverLinks(base, body))
}

func TestDiscoverLinks_NoDuplicates(t *testing.T) {
	base, _ := url.Parse("https://acme.example/")

	// A link matching both keyword sets is returned once.
	body := []byte(`<html><body>
		<a href="/about-contact">About and Contact</a>
	</body></html>`)

	links := discoverLinks(base, body)
	assert.Len(t, links, 1)
}
