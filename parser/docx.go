package parser

import (
	"context"
	"fmt"
	"log/slog"
)

// mediaPrefix is where WordprocessingML packages store embedded media.
const mediaPrefix = "word/media/"

// DOCXExtractor reads the raw text of a DOCX package and counts the files in
// its media folder.
type DOCXExtractor struct {
	Opener PackageOpener
}

func (p *DOCXExtractor) Format() Format { return FormatDOCX }

// Extract returns the document's raw text and the number of entries under
// word/media/. The package is opened once for both.
func (p *DOCXExtractor) Extract(ctx context.Context, data []byte) (*ExtractedContent, error) {
	pkg, err := p.Opener.OpenPackage(data)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := pkg.RawText()
	if err != nil {
		return nil, fmt.Errorf("reading DOCX text: %w", err)
	}

	media := pkg.EntriesUnder(mediaPrefix)
	slog.Debug("docx: extraction complete", "media", len(media), "text_len", len(text))

	return &ExtractedContent{Text: text, ImageCount: len(media)}, nil
}
