// Package format turns raw model output into Telegram HTML.
package format

import (
	"html"
	"regexp"
)

var (
	fenceLangRe = regexp.MustCompile("```[\\p{L}\\p{N}_]+") // language tag, any script
	fenceBodyRe = regexp.MustCompile("```([^`]+)```")
)

// Reply strips language tags from code fences, escapes the text for HTML parse mode and
// rewrites fenced blocks as <code> elements.
//
// Tags are stripped before escaping so the fence pattern still sees raw backticks, and
// fences are rewritten after escaping so the inserted tags survive.
func Reply(raw string) string {
	untagged := fenceLangRe.ReplaceAllString(raw, "```")
	escaped := html.EscapeString(untagged)
	return fenceBodyRe.ReplaceAllString(escaped, "<code>$1</code>")
}
