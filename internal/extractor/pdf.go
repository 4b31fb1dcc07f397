package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// extractPDF concatenates the plain text of every page in page order.
func extractPDF(path string) (text string, err error) {
	// the pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, path, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: %s page %d: %v", domain.ErrExtraction, path, i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}
