package httpclient

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Text concatenates every text node under node.
func Text(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// Clean collapses whitespace and drops non-printable runes.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// SelectionText is the cleaned text of every node in sel.
func SelectionText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		parts = append(parts, Text(n))
	}
	return Clean(strings.Join(parts, " "))
}

// Anchor is a link with its visible text.
type Anchor struct {
	Name string
	Href string
}

// Anchors collects the links in sel, resolving hrefs against base when given.
// Unparseable hrefs are skipped.
func Anchors(sel *goquery.Selection, base *url.URL) []Anchor {
	anchors := []Anchor{}
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			link = base.ResolveReference(link)
		}
		anchors = append(anchors, Anchor{
			Name: SelectionText(s),
			Href: link.String(),
		})
	})
	return anchors
}
