package parser

// PDFOpener opens a PDF content model over an in-memory buffer.
type PDFOpener interface {
	OpenPDF(data []byte) (PDFDocument, error)
}

// PDFDocument is an opened PDF. Pages are numbered from 1.
type PDFDocument interface {
	NumPage() (int, error)
	Page(n int) (PDFPage, error)
}

// PDFPage exposes the text and painting operations of one page.
type PDFPage interface {
	// TextRuns returns the page's text runs in the backend's reading order.
	TextRuns() ([]string, error)
	// DrawingOps returns the page's painting operations in content order.
	DrawingOps() ([]DrawOp, error)
}

// DrawOp classifies a single painting operation of a page content stream.
type DrawOp int

const (
	OpOther DrawOp = iota
	OpShowText
	OpPaintImageXObject
	OpPaintInlineImage
	OpPaintImageMask
	OpPaintFormXObject
)

var drawOpNames = [...]string{
	OpOther:             "other",
	OpShowText:          "show_text",
	OpPaintImageXObject: "paint_image_xobject",
	OpPaintInlineImage:  "paint_inline_image",
	OpPaintImageMask:    "paint_image_mask",
	OpPaintFormXObject:  "paint_form_xobject",
}

func (op DrawOp) String() string {
	if op >= 0 && int(op) < len(drawOpNames) {
		return drawOpNames[op]
	}
	return "unknown"
}

// PaintsImage reports whether op paints an external or inline image. Image
// masks (stencils) are not images for counting purposes.
func (op DrawOp) PaintsImage() bool {
	return op == OpPaintImageXObject || op == OpPaintInlineImage
}

// PackageOpener opens an OOXML package over an in-memory buffer.
type PackageOpener interface {
	OpenPackage(data []byte) (Package, error)
}

// Package is an opened OOXML (ZIP) package.
type Package interface {
	// RawText returns the main document text with paragraph and run
	// boundaries collapsed to whitespace.
	RawText() (string, error)
	// EntriesUnder lists the file entries whose names start with prefix.
	// A prefix that matches nothing yields an empty slice.
	EntriesUnder(prefix string) []string
}
