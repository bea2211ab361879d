package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/change-monitor/internal/config"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Acme Pricing</title>
  <meta name="description" content="Plans and pricing for Acme">
  <style>.x { color: red }</style>
  <script>var tracking = "ignore me";</script>
</head>
<body>
  <nav><a href="/">Home</a><a href="/about">About</a></nav>
  <main>
    <h1>Pricing</h1>
    <p>Starter plan costs <b>10</b> dollars.</p>
    <p>Enterprise plan costs 99 dollars.</p>
    <noscript>Enable JavaScript</noscript>
  </main>
  <footer>Copyright Acme</footer>
</body>
</html>`

func newTestExtractor(cfg config.SelectorConfig) *Extractor {
	if cfg.Default == "" {
		cfg.Default = "main, article"
	}
	if cfg.Exclude == "" {
		cfg.Exclude = "nav, footer"
	}
	return New(cfg)
}

func TestSelectorFor(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(config.SelectorConfig{
		Specific: []config.DomainSelector{
			{Domain: "acme.com", Selector: "#acme"},
			{Domain: "acme.com/blog", Selector: "#blog"},
			{Domain: "globex", Selector: ".globex"},
		},
	})

	tests := []struct {
		url  string
		want string
	}{
		{"https://acme.com/pricing", "#acme"},
		{"https://acme.com/blog/post", "#acme"},
		{"https://www.globex.io", ".globex"},
		{"https://initech.com", "main, article"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.SelectorFor(tt.url))
		})
	}
}

func TestSelectorFor_EmptyDefault(t *testing.T) {
	t.Parallel()

	e := New(config.SelectorConfig{})
	assert.Equal(t, "body", e.SelectorFor("https://example.com"))
}

func TestExtract_MainRegion(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(config.SelectorConfig{})
	got := e.Extract(samplePage, "https://acme.com/pricing")

	assert.Equal(t, "Acme Pricing", got.Title)
	assert.Equal(t, "Plans and pricing for Acme", got.Description)
	assert.Equal(t, "Pricing Starter plan costs 10 dollars. Enterprise plan costs 99 dollars.", got.FullText)
	assert.False(t, got.Degraded)
	assert.Equal(t, 11, got.WordCount)
	assert.Equal(t, len([]rune(got.FullText)), got.Length)
	assert.NotContains(t, got.FullText, "Home")
	assert.NotContains(t, got.FullText, "Copyright")
	assert.NotContains(t, got.FullText, "tracking")
	assert.NotContains(t, got.FullText, "Enable JavaScript")
	assert.NotEmpty(t, got.MainText)
	assert.Contains(t, got.Markdown, "Pricing")
	assert.Contains(t, got.Keywords, "plan")
	assert.Contains(t, got.Keywords, "costs")
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(config.SelectorConfig{})
	a := e.Extract(samplePage, "https://acme.com/pricing")
	b := e.Extract(samplePage, "https://acme.com/pricing")
	assert.Equal(t, a, b)
}

func TestExtract_NestedMatchesCountedOnce(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<div class="outer">Alpha <div class="inner">Beta</div></div>
		<div class="inner">Gamma</div>
	</body></html>`
	e := New(config.SelectorConfig{Default: ".outer, .inner"})
	got := e.Extract(page, "https://example.com")

	assert.Equal(t, "Alpha Beta Gamma", got.FullText)
}

func TestExtract_BlockElementsSeparated(t *testing.T) {
	t.Parallel()

	page := `<html><body><main><ul><li>one</li><li>two</li></ul><p>thr<em>ee</em></p></main></body></html>`
	e := newTestExtractor(config.SelectorConfig{})
	got := e.Extract(page, "https://example.com")

	assert.Equal(t, "one two three", got.FullText)
	assert.Equal(t, 3, got.WordCount)
}

func TestExtract_SelectorMissDegrades(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Plain</title></head><body><div>Just a body</div><footer>foot</footer></body></html>`
	e := New(config.SelectorConfig{Default: "#does-not-exist", Exclude: "footer"})
	got := e.Extract(page, "https://example.com")

	assert.True(t, got.Degraded)
	assert.Equal(t, "Just a body", got.FullText)
	assert.Equal(t, "Plain", got.Title)
}

func TestExtract_SelectorMissKeepsExcludedTextWhenNothingElse(t *testing.T) {
	t.Parallel()

	page := `<html><body><header>Acme launches pricing</header><footer>Acquisition news</footer></body></html>`
	e := New(config.SelectorConfig{Default: "main", Exclude: "nav, header, footer"})
	got := e.Extract(page, "https://example.com")

	assert.True(t, got.Degraded)
	assert.Equal(t, "Acme launches pricing Acquisition news", got.FullText)
	assert.Equal(t, 5, got.WordCount)
	assert.NotEmpty(t, got.Markdown)
}

func TestExtract_OpenGraphFallbacks(t *testing.T) {
	t.Parallel()

	page := `<html><head>
		<meta property="og:title" content="OG Title">
		<meta property="og:description" content="OG description">
	</head><body><main>Body text</main></body></html>`
	e := newTestExtractor(config.SelectorConfig{})
	got := e.Extract(page, "https://example.com")

	assert.Equal(t, "OG Title", got.Title)
	assert.Equal(t, "OG description", got.Description)
}

func TestExtract_EmptyDocument(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(config.SelectorConfig{})
	got := e.Extract("", "https://example.com")

	assert.Equal(t, "", got.FullText)
	assert.Equal(t, 0, got.WordCount)
	assert.Equal(t, 0, got.Length)
	assert.True(t, got.Degraded)
	assert.Empty(t, got.Keywords)
}

func TestExtract_UnicodeNormalized(t *testing.T) {
	t.Parallel()

	page := "<html><body><main>Cafe\u0301 \u200bmenu</main></body></html>"
	e := newTestExtractor(config.SelectorConfig{})
	got := e.Extract(page, "https://example.com")

	require.Equal(t, "Caf\u00e9 menu", got.FullText)
	assert.Equal(t, 9, got.Length)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	got := CleanText(stripHTML(`<p>Fish &amp; chips</p><script>x()</script><style>p{}</style><div>Done</div>`))
	assert.Equal(t, "Fish & chips Done", got)
	assert.Equal(t, "Hi there", extractTitle("<TITLE> Hi  there </TITLE>"))
	assert.Equal(t, "", extractTitle("<p>none</p>"))
}
