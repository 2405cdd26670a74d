package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

const (
	// maxFormDepth bounds recursion into nested Form XObjects.
	maxFormDepth = 8
	// maxContentSize bounds the decoded content of a single page or form.
	maxContentSize = 64 << 20
)

var errContentTooLarge = errors.New("content stream too large")

type ledongthucOpener struct{}

// NewPDFOpener returns the default PDFOpener, backed by
// github.com/ledongthuc/pdf. Panics raised by the backend while reading a
// damaged file are returned as errors.
func NewPDFOpener() PDFOpener { return ledongthucOpener{} }

func (ledongthucOpener) OpenPDF(data []byte) (doc PDFDocument, err error) {
	if len(data) == 0 {
		return nil, errors.New("empty buffer")
	}
	defer recoverPDF(&err)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &pdfDocument{r: r}, nil
}

func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf: %v", r)
	}
}

type pdfDocument struct {
	r *pdf.Reader
}

func (d *pdfDocument) NumPage() (n int, err error) {
	defer recoverPDF(&err)
	return d.r.NumPage(), nil
}

func (d *pdfDocument) Page(n int) (page PDFPage, err error) {
	defer recoverPDF(&err)
	p := d.r.Page(n)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", n)
	}
	return &pdfPage{p: p}, nil
}

// pdfPage interprets the page content stream once and serves both text runs
// and drawing operations from the result.
type pdfPage struct {
	p pdf.Page

	once sync.Once
	runs []string
	ops  []DrawOp
	err  error
}

func (pg *pdfPage) TextRuns() ([]string, error) {
	pg.once.Do(pg.interpret)
	return pg.runs, pg.err
}

func (pg *pdfPage) DrawingOps() ([]DrawOp, error) {
	pg.once.Do(pg.interpret)
	return pg.ops, pg.err
}

func (pg *pdfPage) interpret() {
	var w contentWalker
	err := func() (err error) {
		defer recoverPDF(&err)
		return w.walk(pg.p.V.Key("Contents"), pg.p.Resources(), 0)
	}()
	if err != nil {
		pg.err = err
		return
	}
	pg.runs, pg.ops = w.runs, w.ops
}

// contentWalker collects text runs and classified operations from a content
// stream, descending into Form XObjects.
type contentWalker struct {
	runs []string
	ops  []DrawOp
}

// rawEncoding passes string bytes through when a font cannot be resolved.
type rawEncoding struct{}

func (rawEncoding) Decode(raw string) string { return raw }

func (w *contentWalker) walk(strm, resources pdf.Value, depth int) error {
	if strm.IsNull() {
		return nil
	}
	data, err := contentBytes(strm)
	if err != nil {
		return err
	}

	encoders := make(map[string]pdf.TextEncoding)
	encoderFor := func(name string) pdf.TextEncoding {
		if enc, ok := encoders[name]; ok {
			return enc
		}
		var enc pdf.TextEncoding = rawEncoding{}
		font := pdf.Font{V: resources.Key("Font").Key(name)}
		if !font.V.IsNull() {
			if e := font.Encoder(); e != nil {
				enc = e
			}
		}
		encoders[name] = enc
		return enc
	}

	var (
		enc     pdf.TextEncoding = rawEncoding{}
		walkErr error
	)
	scanContent(data, func(op contentOp) {
		if walkErr != nil {
			return
		}
		args := op.args
		switch op.name {
		case "Tf":
			if len(args) == 2 {
				enc = encoderFor(args[0].str)
			}
			w.ops = append(w.ops, OpOther)
		case "Tj", "'", "\"":
			if n := len(args); n > 0 && args[n-1].kind == operandString {
				w.runs = append(w.runs, enc.Decode(args[n-1].str))
			}
			w.ops = append(w.ops, OpShowText)
		case "TJ":
			if len(args) > 0 {
				var b strings.Builder
				for _, x := range args[0].elems {
					if x.kind == operandString {
						b.WriteString(enc.Decode(x.str))
					}
				}
				w.runs = append(w.runs, b.String())
			}
			w.ops = append(w.ops, OpShowText)
		case "Do":
			if len(args) == 1 {
				walkErr = w.xobject(resources, resources.Key("XObject").Key(args[0].str), depth)
			}
		case "BI":
			w.ops = append(w.ops, inlineImageOp(args))
		default:
			w.ops = append(w.ops, OpOther)
		}
	})
	return walkErr
}

func (w *contentWalker) xobject(parentResources, x pdf.Value, depth int) error {
	switch x.Key("Subtype").Name() {
	case "Image":
		if x.Key("ImageMask").Bool() {
			w.ops = append(w.ops, OpPaintImageMask)
			return nil
		}
		w.ops = append(w.ops, OpPaintImageXObject)
	case "Form":
		w.ops = append(w.ops, OpPaintFormXObject)
		if depth >= maxFormDepth {
			return nil
		}
		resources := x.Key("Resources")
		if resources.IsNull() {
			resources = parentResources
		}
		return w.walk(x, resources, depth+1)
	default:
		w.ops = append(w.ops, OpOther)
	}
	return nil
}

// inlineImageOp classifies an inline image from its dictionary entries.
func inlineImageOp(dict []operand) DrawOp {
	for i := 0; i+1 < len(dict); i += 2 {
		switch dict[i].str {
		case "IM", "ImageMask":
			if v := dict[i+1]; v.kind == operandBool && v.b {
				return OpPaintImageMask
			}
		}
	}
	return OpPaintInlineImage
}

// contentBytes decodes a content stream. An array of streams is read as
// their concatenation, since operators may span stream boundaries.
func contentBytes(strm pdf.Value) ([]byte, error) {
	if strm.Kind() != pdf.Array {
		return streamBytes(strm)
	}
	var buf bytes.Buffer
	for i := 0; i < strm.Len(); i++ {
		b, err := streamBytes(strm.Index(i))
		if err != nil {
			return nil, err
		}
		if buf.Len()+len(b) > maxContentSize {
			return nil, errContentTooLarge
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func streamBytes(v pdf.Value) ([]byte, error) {
	rc := v.Reader()
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content stream: %w", err)
	}
	if len(b) > maxContentSize {
		return nil, errContentTooLarge
	}
	return b, nil
}
