package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/logger"
)

// extractPDF flattens the ordered text elements of every page, separated by
// newlines. The parser panics on some malformed inputs, so the call is
// isolated behind a recover that surfaces an extraction error instead.
func extractPDF(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Warn("PDF parser panicked", "path", path, "panic", fmt.Sprint(r))
			text = ""
			err = core.NewError(nil, core.CodeExtractionFailed,
				fmt.Sprintf("pdf parser failed: %v", r), map[string]any{"path": path})
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", core.NewError(err, core.CodeExtractionFailed,
			"open pdf", map[string]any{"path": path})
	}
	defer file.Close()
	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		for _, element := range page.Content().Text {
			if element.S == "" {
				continue
			}
			b.WriteString(element.S)
			b.WriteByte('\n')
		}
	}
	flattened := strings.TrimSpace(b.String())
	if flattened == "" {
		return "", core.NewError(nil, core.CodeExtractionFailed,
			"pdf contains no extractable text", map[string]any{"path": path})
	}
	return flattened, nil
}
