package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/chunkr/chunkr/engine/core"
)

var skippedElements = map[string]struct{}{
	"script": {},
	"style":  {},
	"head":   {},
}

// flattenHTML walks the tokenizer output collecting visible text nodes in
// document order, one element per line.
func flattenHTML(src string) (string, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			flattened := strings.TrimSpace(b.String())
			if flattened == "" {
				return "", core.NewError(nil, core.CodeExtractionFailed,
					"html contains no extractable text", nil)
			}
			return flattened, nil
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := skippedElements[string(name)]; ok {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := skippedElements[string(name)]; ok && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
	}
}
