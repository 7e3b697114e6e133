package rag

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"sec-rag/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML renders the answer markdown followed by its citation list.
func RenderHTML(answer *models.Answer) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<h2>%s</h2>\n", html.EscapeString(answer.Question))
	if err := markdown.Convert([]byte(answer.Text), &buf); err != nil {
		return "", fmt.Errorf("failed to render answer: %w", err)
	}
	if len(answer.Citations) == 0 {
		return buf.String(), nil
	}

	buf.WriteString("<h3>Sources</h3>\n<ol>\n")
	for _, c := range answer.Citations {
		fmt.Fprintf(&buf, "<li value=\"%d\"><strong>%s (%s)</strong>, filed %s, %s<br><em>%s</em></li>\n",
			c.SourceIndex,
			html.EscapeString(c.Company),
			html.EscapeString(c.Ticker),
			html.EscapeString(c.FilingDate),
			html.EscapeString(c.Section),
			html.EscapeString(c.Excerpt))
	}
	buf.WriteString("</ol>\n")
	return buf.String(), nil
}
