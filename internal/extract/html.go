package extract

import (
	"os"
	"strings"

	"golang.org/x/net/html"
)

var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
	"head":   true,
}

var blockElements = map[string]bool{
	"p": true, "li": true, "td": true, "th": true, "blockquote": true, "div": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "br": true, "tr": true,
}

func parseHTML(path string) (Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extraction{}, err
	}
	defer f.Close()
	doc, err := html.Parse(f)
	if err != nil {
		return Extraction{}, err
	}

	var buf strings.Builder
	atLineStart := true
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				if !atLineStart {
					buf.WriteByte(' ')
				}
				buf.WriteString(t)
				atLineStart = false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && !atLineStart {
			buf.WriteString("\n")
			atLineStart = true
		}
	}
	walk(doc)
	return Extraction{Text: buf.String(), Title: findTitle(doc), Method: MethodHTML}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}
