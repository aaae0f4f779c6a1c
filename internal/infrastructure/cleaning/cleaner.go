package cleaning

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	crlfPattern        = regexp.MustCompile(`\r\n?`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeNewline = regexp.MustCompile(`[ \t]+\n`)
)

// Cleaner strips HTML markup from exported policy content and normalizes
// whitespace. Source documents arrive as CMS exports, so markup is the rule,
// not the exception.
type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

func (c *Cleaner) Clean(content string) string {
	text := stripMarkup(content)
	return normalizeWhitespace(text)
}

// stripMarkup walks the token stream instead of parsing a full tree; exports
// are frequently truncated mid-tag and the tokenizer degrades gracefully.
func stripMarkup(content string) string {
	if !strings.ContainsAny(content, "<>") {
		return content
	}

	tokenizer := html.NewTokenizer(strings.NewReader(content))
	var out strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return out.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			} else if isBlockTag(string(name)) {
				out.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			} else if isBlockTag(string(name)) {
				out.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "br" {
				out.WriteString("\n")
			}
		case html.TextToken:
			if skipDepth == 0 {
				out.Write(tokenizer.Text())
			}
		}
	}
}

func isSkippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript":
		return true
	default:
		return false
	}
}

func isBlockTag(name string) bool {
	switch name {
	case "p", "div", "li", "ul", "ol", "table", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
		return true
	default:
		return false
	}
}

func normalizeWhitespace(text string) string {
	text = crlfPattern.ReplaceAllString(text, "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = spaceBeforeNewline.ReplaceAllString(text, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
