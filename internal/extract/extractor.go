// Package extract turns raw HTML into normalized page text and metadata.
package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/model"
)

const (
	fallbackSelector   = "body"
	defaultMaxKeywords = 20
	alwaysDropped      = "script, style, noscript, template, svg, iframe"
)

// Extractor resolves the content region of a page and normalizes its text.
// It is safe for concurrent use.
type Extractor struct {
	cfg         config.SelectorConfig
	maxKeywords int
	md          *converter.Converter
	log         *zap.Logger
}

// New creates an Extractor from selector configuration.
func New(cfg config.SelectorConfig) *Extractor {
	if strings.TrimSpace(cfg.Default) == "" {
		cfg.Default = fallbackSelector
	}
	maxKw := cfg.MaxKeywords
	if maxKw <= 0 {
		maxKw = defaultMaxKeywords
	}
	return &Extractor{
		cfg:         cfg,
		maxKeywords: maxKw,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: zap.L().With(zap.String("component", "extract")),
	}
}

// SelectorFor returns the content selector for pageURL: the first domain
// entry contained in the URL, else the default.
func (e *Extractor) SelectorFor(pageURL string) string {
	for _, s := range e.cfg.Specific {
		if s.Domain != "" && strings.Contains(pageURL, s.Domain) {
			return s.Selector
		}
	}
	return e.cfg.Default
}

// Extract parses raw HTML fetched from pageURL. It never fails: when the
// selector matches nothing the whole document is used and Degraded is set,
// and markup that cannot be parsed falls back to tag-stripped text. The
// whole-document fallback honours Exclude unless that would leave no text.
func (e *Extractor) Extract(raw, pageURL string) model.ExtractedContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		e.log.Debug("extract: unparseable markup, stripping tags", zap.String("url", pageURL), zap.Error(err))
		text := CleanText(stripHTML(raw))
		return e.build(model.ExtractedContent{
			Title:    extractTitle(raw),
			MainText: text,
			FullText: text,
			Degraded: true,
		})
	}

	out := model.ExtractedContent{
		Title:       metaTitle(doc),
		Description: metaDescription(doc),
	}

	doc.Find(alwaysDropped).Remove()
	if e.cfg.Exclude != "" {
		doc.Find(e.cfg.Exclude).Remove()
	}

	selector := e.SelectorFor(pageURL)
	nodes := outermost(doc.Find(selector).Nodes)
	if len(nodes) == 0 {
		e.log.Debug("extract: selector matched nothing, using whole document",
			zap.String("url", pageURL), zap.String("selector", selector))
		out.Degraded = true
		nodes = wholeDocument(doc)
		if strings.TrimSpace(nodesText(nodes)) == "" {
			// Exclusions removed every text-bearing region; keep them.
			if full, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
				full.Find(alwaysDropped).Remove()
				nodes = wholeDocument(full)
			}
		}
	}

	out.FullText = CleanText(nodesText(nodes))
	out.Markdown = e.markdown(nodes, pageURL)

	mainText, excerpt := e.readable(raw, pageURL)
	out.MainText = mainText
	if out.MainText == "" {
		out.MainText = out.FullText
	}
	if out.Description == "" {
		out.Description = excerpt
	}

	return e.build(out)
}

// build fills the derived fields.
func (e *Extractor) build(c model.ExtractedContent) model.ExtractedContent {
	c.Length = utf8.RuneCountInString(c.FullText)
	c.WordCount = len(strings.Fields(c.FullText))
	c.Keywords = Keywords(c.FullText, e.maxKeywords)
	return c
}

// readable runs the readability algorithm over the original document and
// returns the main article text and its excerpt.
func (e *Extractor) readable(raw, pageURL string) (string, string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(raw), u)
	if err != nil {
		e.log.Debug("extract: readability failed", zap.String("url", pageURL), zap.Error(err))
		return "", ""
	}
	var mainText string
	if article.Content != "" {
		if node, err := html.Parse(strings.NewReader(article.Content)); err == nil {
			mainText = CleanText(nodesText([]*html.Node{node}))
		}
	}
	return mainText, CleanText(article.Excerpt)
}

// markdown renders the matched regions for prompt context.
func (e *Extractor) markdown(nodes []*html.Node, pageURL string) string {
	var b strings.Builder
	for _, n := range nodes {
		var sb strings.Builder
		if err := html.Render(&sb, n); err != nil {
			continue
		}
		b.WriteString(sb.String())
	}
	if b.Len() == 0 {
		return ""
	}
	md, err := e.md.ConvertString(b.String(), converter.WithDomain(pageURL))
	if err != nil {
		e.log.Debug("extract: markdown conversion failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(md)
}

// wholeDocument returns the body of doc, or the document root when there is
// no body.
func wholeDocument(doc *goquery.Document) []*html.Node {
	if nodes := outermost(doc.Find(fallbackSelector).Nodes); len(nodes) > 0 {
		return nodes
	}
	return doc.Nodes
}

// outermost drops nodes that are descendants of another node in the set, so
// nested matches are not counted twice. Document order is kept.
func outermost(nodes []*html.Node) []*html.Node {
	if len(nodes) < 2 {
		return nodes
	}
	set := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

func metaTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return CleanText(t)
	}
	return metaContent(doc, `meta[property="og:title"]`)
}

func metaDescription(doc *goquery.Document) string {
	if d := metaContent(doc, `meta[name="description"]`); d != "" {
		return d
	}
	return metaContent(doc, `meta[property="og:description"]`)
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return CleanText(v)
}
