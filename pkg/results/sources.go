package results

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var sourceParser = goldmark.New(goldmark.WithExtensions(extension.Linkify)).Parser()

// ExtractSources returns the link destinations of a markdown document in
// order of first appearance, without duplicates.
func ExtractSources(markdown string) []string {
	src := []byte(markdown)
	doc := sourceParser.Parse(text.NewReader(src))

	seen := map[string]bool{}
	ret := []string{}
	add := func(dest string) {
		if dest == "" || seen[dest] {
			return
		}
		seen[dest] = true
		ret = append(ret, dest)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := n.(type) {
		case *ast.Link:
			add(string(l.Destination))
		case *ast.AutoLink:
			if l.AutoLinkType == ast.AutoLinkURL {
				add(string(l.URL(src)))
			}
		}
		return ast.WalkContinue, nil
	})
	return ret
}
