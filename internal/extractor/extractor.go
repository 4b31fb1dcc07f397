// Package extractor converts source artifacts into raw text in reading order.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"docqa/internal/domain"
)

// Ensure FileExtractor implements the interface.
var _ domain.Extractor = (*FileExtractor)(nil)

// FileExtractor reads PDF and PPTX files from the local filesystem.
type FileExtractor struct{}

// New creates a file extractor.
func New() *FileExtractor {
	return &FileExtractor{}
}

// Extract returns the text of the artifact at path.
// Pages (PDF) or text-bearing shapes (PPTX) are joined with newlines.
func (e *FileExtractor) Extract(ctx context.Context, path string, kind domain.Kind) (string, error) {
	if kind != domain.KindPDF && kind != domain.KindPPTX {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, kind)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkSource(path); err != nil {
		return "", err
	}
	switch kind {
	case domain.KindPDF:
		return extractPDF(path)
	default:
		return extractPPTX(path)
	}
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrExtraction, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrExtraction, path)
	}
	return nil
}
