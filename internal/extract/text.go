package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// blockElements get a space on each side so adjacent blocks never run
// together when their text is joined.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true,
	atom.Tr: true, atom.Ul: true, atom.Option: true, atom.Title: true,
}

// nodesText concatenates the text of nodes in document order.
func nodesText(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
		b.WriteByte(' ')
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// CleanText normalizes text for hashing and diffing: NFC composition,
// zero-width characters removed, whitespace collapsed and trimmed.
func CleanText(text string) string {
	text = norm.NFC.String(text)
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	text = multiSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropTagsRe = regexp.MustCompile(`(?is)<(script|style|noscript|template|svg)[^>]*>.*?</(script|style|noscript|template|svg)>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
)

// extractTitle pulls the <title> from raw markup.
func extractTitle(raw string) string {
	m := titleRe.FindStringSubmatch(raw)
	if len(m) > 1 {
		return CleanText(html.UnescapeString(m[1]))
	}
	return ""
}

// stripHTML removes non-content blocks and tags and decodes entities.
func stripHTML(raw string) string {
	raw = dropTagsRe.ReplaceAllString(raw, " ")
	raw = tagRe.ReplaceAllString(raw, " ")
	return html.UnescapeString(raw)
}
