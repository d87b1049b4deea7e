// Package htmlprocessor post-processes captured markup
package htmlprocessor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxTitleLength = 500

// executableScriptTypes are script types a browser would run.
// A missing or empty type is executable too.
var executableScriptTypes = map[string]bool{
	"text/javascript":        true,
	"application/javascript": true,
	"application/ecmascript": true,
	"text/ecmascript":        true,
	"module":                 true,
}

// StripScripts removes executable scripts and the links that load them.
// Data blocks such as JSON-LD are kept. markup may be a whole document or
// the outer HTML of one element; the shape of the input is preserved.
func StripScripts(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	doc.Find("script").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isExecutableScript(s)
	}).Remove()
	doc.Find("link").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isScriptLink(s)
	}).Remove()

	if isDocument(markup) {
		return doc.Html()
	}
	return doc.Find("body").Html()
}

// Title returns the trimmed text of the first <title>
func Title(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title, nil
}

func isExecutableScript(s *goquery.Selection) bool {
	scriptType, ok := s.Attr("type")
	scriptType = strings.ToLower(strings.TrimSpace(scriptType))
	if !ok || scriptType == "" {
		return true
	}
	return executableScriptTypes[scriptType]
}

func isScriptLink(s *goquery.Selection) bool {
	switch strings.ToLower(strings.TrimSpace(s.AttrOr("rel", ""))) {
	case "import", "modulepreload":
		return true
	case "preload", "prefetch":
		return strings.EqualFold(s.AttrOr("as", ""), "script")
	}
	return false
}

// isDocument reports whether markup starts with a doctype or <html>
func isDocument(markup string) bool {
	head := strings.ToLower(strings.TrimSpace(markup))
	if len(head) > 16 {
		head = head[:16]
	}
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}
