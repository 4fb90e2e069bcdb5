// Package content turns the HTML body of a post into plain text and the
// hashtags, mentions and links it contains.
package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Content is a normalized post body.
type Content struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
	Mentions []string `json:"mentions"`
	URLs     []string `json:"urls"`
}

// Placeholder is the content recorded when a post body could not be fetched.
func Placeholder() Content {
	return Content{
		Text:     "<unavailable>",
		Hashtags: []string{},
		Mentions: []string{},
		URLs:     []string{},
	}
}

// Empty is the normalized form of an empty body.
func Empty() Content {
	return Content{Hashtags: []string{}, Mentions: []string{}, URLs: []string{}}
}

// Normalize parses body and extracts its text, hashtags, mentions and URLs.
// Lists are never nil. Malformed HTML is handled the way browsers do.
func Normalize(body string) Content {
	c := Empty()
	if strings.TrimSpace(body) == "" {
		return c
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		c.Text = strings.TrimSpace(body)
		return c
	}

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		switch {
		case a.HasClass("mention") && a.HasClass("hashtag"):
			if tag := spanText(a, "#"); tag != "" {
				c.Hashtags = append(c.Hashtags, tag)
			}
		case a.HasClass("u-url") && a.HasClass("mention"):
			if name := spanText(a, "@"); name != "" {
				c.Mentions = append(c.Mentions, name)
			}
		case a.HasClass("hashtag") || a.HasClass("mention"):
		default:
			if href, ok := a.Attr("href"); ok && href != "" {
				c.URLs = append(c.URLs, href)
			}
		}
	})

	var b strings.Builder
	for _, n := range doc.Find("body").Nodes {
		writeText(&b, n)
	}
	c.Text = tidy(b.String())
	return c
}

// spanText returns the text of the first span inside a, falling back to
// the anchor text without its sigil.
func spanText(a *goquery.Selection, sigil string) string {
	if span := a.Find("span").First(); span.Length() > 0 {
		return strings.TrimSpace(span.Text())
	}
	return strings.TrimPrefix(strings.TrimSpace(a.Text()), sigil)
}

// writeText renders n as text: <br> becomes a newline and block level
// paragraphs are separated by a blank line.
func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "p", "div", "blockquote", "li", "pre":
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
				b.WriteString("\n\n")
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		writeText(b, child)
	}
}

// tidy trims each line and the whole text, keeping intended line breaks.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
