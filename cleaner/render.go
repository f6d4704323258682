// Package cleaner turns raw fetched HTML into one of the three wire formats
// a FetchRequest can ask for: html (untouched), html-stripped (readability
// main-content extraction), or markdown (readability + html-to-markdown
// conversion). Grounded on Easonliuliang-purify's cleaner/pipeline.go
// two-stage pipeline, narrowed to the formats FetchRequest.Format actually
// supports — its extractMode variants (raw/pruning/auto), CSS-selector/
// include-exclude filtering, token estimation, and citation conversion have
// no home in the format enum here and are dropped.
package cleaner

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Cleaner holds the reusable, goroutine-safe Markdown converter.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner builds a Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// Render converts rawHTML into the requested format. It returns the content
// to place in FetchResult.Content and, only for format "markdown", the
// Markdown string to also place in FetchResult.Markdown.
func (c *Cleaner) Render(rawHTML, sourceURL, format string) (content, markdown string, err error) {
	switch format {
	case "html-stripped":
		article, _ := ExtractContent(rawHTML, sourceURL)
		return article.Content, "", nil

	case "markdown":
		article, _ := ExtractContent(rawHTML, sourceURL)
		md, err := ToMarkdown(c.mdConverter, article.Content, sourceURL)
		if err != nil {
			return "", "", err
		}
		return article.Content, md, nil

	default: // "html"
		return rawHTML, "", nil
	}
}
