package parser

import "fmt"

// Registry holds one extractor per supported format. The set of formats is
// closed; Get dispatches with a switch rather than a lookup table.
type Registry struct {
	pdf  Extractor
	docx Extractor
}

// RegistryOption customises the extractors built by NewRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	pdfOpener       PDFOpener
	packageOpener   PackageOpener
	pageConcurrency int
}

// WithPDFOpener substitutes the PDF content model backend.
func WithPDFOpener(o PDFOpener) RegistryOption {
	return func(opts *registryOptions) { opts.pdfOpener = o }
}

// WithPackageOpener substitutes the OOXML package backend.
func WithPackageOpener(o PackageOpener) RegistryOption {
	return func(opts *registryOptions) { opts.packageOpener = o }
}

// WithPageConcurrency bounds how many PDF pages are read at once.
func WithPageConcurrency(n int) RegistryOption {
	return func(opts *registryOptions) { opts.pageConcurrency = n }
}

// NewRegistry builds the PDF and DOCX extractors over the default backends
// unless overridden.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		pdfOpener:     NewPDFOpener(),
		packageOpener: NewPackageOpener(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		pdf:  &PDFExtractor{Opener: o.pdfOpener, Concurrency: o.pageConcurrency},
		docx: &DOCXExtractor{Opener: o.packageOpener},
	}
}

// Get returns the extractor for format.
func (r *Registry) Get(format Format) (Extractor, error) {
	switch format {
	case FormatPDF:
		return r.pdf, nil
	case FormatDOCX:
		return r.docx, nil
	default:
		return nil, fmt.Errorf("%w: no extractor for %q", ErrUnsupportedFormat, format)
	}
}
