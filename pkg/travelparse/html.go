package travelparse

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// PlainText prepares an email body for parsing: HTML bodies are converted
// to markdown text so the model sees content instead of markup. Plain-text
// bodies and conversion failures pass through unchanged.
func PlainText(body string) string {
	if !looksLikeHTML(body) {
		return body
	}
	text, err := md.ConvertString(body)
	if err != nil {
		return body
	}
	return text
}

func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"<html", "<body", "<div", "<table", "<p>", "<br"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
