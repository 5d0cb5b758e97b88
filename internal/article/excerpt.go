package article

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const excerptLength = 200

// Excerpt returns the visible text of the HTML content, whitespace-collapsed and cut to
// at most limit runes on a word boundary.
func Excerpt(content string, limit int) string {
	text := strings.Join(strings.Fields(visibleText(content)), " ")
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

func visibleText(content string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(content))

	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenTag(string(name)) {
				skipDepth++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func isHiddenTag(name string) bool {
	switch name {
	case "script", "style", "template":
		return true
	default:
		return false
	}
}
