package parser

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Format identifies a supported document container format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Formats lists every supported format.
var Formats = []Format{FormatPDF, FormatDOCX}

// ErrUnsupportedFormat is returned by Classify for names whose extension is
// not a supported format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ExtractedContent is what an extractor produces from a document buffer.
type ExtractedContent struct {
	Text       string
	ImageCount int
}

// Extractor turns the bytes of one document format into text and an image count.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*ExtractedContent, error)
	Format() Format
}

// Classify infers the document format from the final extension of name,
// case-insensitively. Only the base name is inspected.
func Classify(name string) (Format, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, name)
	}
	ext := strings.ToLower(base[i+1:])
	switch Format(ext) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
