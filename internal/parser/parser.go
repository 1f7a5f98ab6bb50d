// Package parser extracts the indexable fields of a markdown document:
// frontmatter title, body and plain text.
package parser

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Result holds the output of parsing a markdown document.
type Result struct {
	Title string // frontmatter title, else first level-1 heading, else empty
	Body  string // markdown body with frontmatter stripped
	Plain string // whitespace-joined text content, what the search index stores
}

type meta struct {
	Title string `yaml:"title"`
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Parse extracts title, body and plain text from raw markdown bytes.
// Malformed frontmatter is not an error: the whole input is treated as
// body, matching how editors show such files.
func Parse(data []byte) *Result {
	var m meta
	body, err := frontmatter.Parse(bytes.NewReader(data), &m)
	if err != nil {
		m = meta{}
		body = data
	}

	doc := md.Parser().Parse(text.NewReader(body))

	title := strings.TrimSpace(m.Title)
	var plain []string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if title == "" && node.Level == 1 {
				title = strings.TrimSpace(string(node.Text(body)))
			}
		case *ast.Text:
			if s := strings.TrimSpace(string(node.Segment.Value(body))); s != "" {
				plain = append(plain, s)
			}
		case *ast.String:
			if s := strings.TrimSpace(string(node.Value)); s != "" {
				plain = append(plain, s)
			}
		}
		return ast.WalkContinue, nil
	})

	return &Result{
		Title: title,
		Body:  string(body),
		Plain: strings.Join(plain, " "),
	}
}
