// Package docloader turns stored document bytes into plain text for
// chunking. Binary formats such as PDF are extracted upstream of this
// service; here we handle HTML and text payloads.
package docloader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`[ \t]+`)

type Loader struct{}

func New() *Loader {
	return &Loader{}
}

func (l *Loader) ExtractText(data []byte, contentType string) (string, error) {
	if strings.Contains(contentType, "html") {
		return l.extractHTML(string(data))
	}
	return normalize(string(data)), nil
}

func (l *Loader) extractHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return normalize(doc.Find("body").Text()), nil
}

func normalize(text string) string {
	text = whitespace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
