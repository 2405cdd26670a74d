// Package parsertest builds small PDF and DOCX documents in memory for tests.
package parsertest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// pdfBuilder assembles an uncompressed PDF with a correct xref table.
type pdfBuilder struct {
	objs []string
}

func (b *pdfBuilder) add(body string) int {
	b.objs = append(b.objs, body)
	return len(b.objs)
}

func (b *pdfBuilder) addStream(dict, data string) int {
	return b.add(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (b *pdfBuilder) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objs))
	for i, obj := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, xref)
	return buf.Bytes()
}

// PDF returns a document with one page per content stream. Every page shares
// a WinAnsi Helvetica font /F1, an image /Im1, a stencil mask /Mask1 and a
// form /Fm1 that paints /Im1.
func PDF(contents ...string) []byte {
	return PDFDeclaringPages(len(contents), contents...)
}

// PDFDeclaringPages is PDF with the page tree's /Count set to count instead
// of the number of pages actually present.
func PDFDeclaringPages(count int, contents ...string) []byte {
	const firstPage = 7
	kids := make([]string, 0, len(contents))
	for i := range contents {
		kids = append(kids, fmt.Sprintf("%d 0 R", firstPage+2*i+1))
	}

	var b pdfBuilder
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), count))
	b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	b.addStream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "x")
	b.addStream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ImageMask true", "x")
	b.addStream("/Type /XObject /Subtype /Form /BBox [0 0 10 10]", "q /Im1 Do Q")

	resources := "<< /Font << /F1 3 0 R >> /XObject << /Im1 4 0 R /Mask1 5 0 R /Fm1 6 0 R >> >>"
	for _, content := range contents {
		id := b.addStream("", content)
		b.add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources %s /Contents %d 0 R >>", resources, id))
	}
	return b.bytes()
}

// TextPDF returns a single-page document showing text with /F1.
func TextPDF(text string) []byte {
	escaped := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(text)
	return PDF(fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escaped))
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

	packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="%s"/>
</Relationships>`

	documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>%s</w:body>
</w:document>`
)

// DOCX describes a WordprocessingML package.
type DOCX struct {
	// Paragraphs become one w:p each, with a single run.
	Paragraphs []string
	// Body, when set, replaces Paragraphs as the raw w:body content.
	Body string
	// Media maps file names under word/media/ to their contents.
	Media map[string][]byte
	// MainPart overrides where the main document part is stored. The
	// package relationships point at it.
	MainPart string
	// OmitMainPart leaves the main document part out of the package.
	OmitMainPart bool
	// Extra holds additional entries by full name.
	Extra map[string][]byte
}

// Bytes serializes the package as a ZIP archive.
func (d DOCX) Bytes() []byte {
	mainPart := d.MainPart
	if mainPart == "" {
		mainPart = "word/document.xml"
	}

	body := d.Body
	if body == "" {
		var b strings.Builder
		for _, p := range d.Paragraphs {
			fmt.Fprintf(&b, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, xmlEscape(p))
		}
		body = b.String()
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		fw, err := w.Create(name)
		if err != nil {
			panic(fmt.Sprintf("creating zip entry %s: %v", name, err))
		}
		if _, err := fw.Write(data); err != nil {
			panic(fmt.Sprintf("writing zip entry %s: %v", name, err))
		}
	}

	write("[Content_Types].xml", []byte(contentTypesXML))
	write("_rels/.rels", []byte(fmt.Sprintf(packageRelsXML, mainPart)))
	if !d.OmitMainPart {
		write(mainPart, []byte(fmt.Sprintf(documentXML, body)))
	}
	for _, name := range sortedKeys(d.Media) {
		write("word/media/"+name, d.Media[name])
	}
	for _, name := range sortedKeys(d.Extra) {
		write(name, d.Extra[name])
	}

	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("closing zip writer: %v", err))
	}
	return buf.Bytes()
}

// TextDOCX returns a package with one paragraph per argument and no media.
func TextDOCX(paragraphs ...string) []byte {
	return DOCX{Paragraphs: paragraphs}.Bytes()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
