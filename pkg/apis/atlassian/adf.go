package atlassian

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Document is an Atlassian Document Format node.
type Document struct {
	Type    string     `json:"type"`
	Version int        `json:"version,omitempty"`
	Text    string     `json:"text,omitempty"`
	Content []Document `json:"content,omitempty"`
}

// TextDocument wraps plain text into an ADF doc, one paragraph per line.
func TextDocument(text string) Document {
	doc := Document{Type: "doc", Version: 1}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		paragraph := Document{Type: "paragraph"}
		if line != "" {
			paragraph.Content = []Document{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, paragraph)
	}
	return doc
}

// blockTypes end with a line break when flattened.
var blockTypes = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"listItem":    true,
	"codeBlock":   true,
	"blockquote":  true,
	"tableRow":    true,
	"rule":        true,
	"mediaSingle": true,
}

// PlainText renders a body field to text. A JSON string is returned as is,
// an ADF document is flattened to its text nodes and anything else is
// returned as compact JSON. Null or empty input yields "".
func PlainText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err == nil && doc.Type == "doc" {
		var b strings.Builder
		flatten(&b, doc)
		return strings.TrimRight(b.String(), "\n")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}

func flatten(b *strings.Builder, node Document) {
	switch node.Type {
	case "text":
		b.WriteString(node.Text)
		return
	case "hardBreak":
		b.WriteByte('\n')
		return
	}
	for _, child := range node.Content {
		flatten(b, child)
	}
	if blockTypes[node.Type] {
		b.WriteByte('\n')
	}
}
