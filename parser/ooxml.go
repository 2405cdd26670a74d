package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

const (
	wordprocessingNS     = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	officeDocumentRel    = "/officeDocument"
	defaultMainPart      = "word/document.xml"
	packageRelsPart      = "_rels/.rels"
	maxPackagePartLength = 256 << 20
)

type zipOpener struct{}

// NewPackageOpener returns the default PackageOpener, built on archive/zip
// and encoding/xml.
func NewPackageOpener() PackageOpener { return zipOpener{} }

func (zipOpener) OpenPackage(data []byte) (Package, error) {
	if len(data) == 0 {
		return nil, errors.New("empty buffer")
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	fileIndex := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileIndex[f.Name] = f
	}
	return &zipPackage{files: r.File, fileIndex: fileIndex}, nil
}

type zipPackage struct {
	files     []*zip.File
	fileIndex map[string]*zip.File
}

func (p *zipPackage) EntriesUnder(prefix string) []string {
	entries := []string{}
	for _, f := range p.files {
		if !strings.HasPrefix(f.Name, prefix) || f.Name == prefix {
			continue
		}
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, f.Name)
	}
	sort.Strings(entries)
	return entries
}

func (p *zipPackage) RawText() (string, error) {
	name := p.mainPart()
	f := p.fileIndex[name]
	if f == nil {
		return "", fmt.Errorf("%s not found in package", name)
	}
	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	text, err := rawDocumentText(data)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return text, nil
}

// mainPart resolves the main document part from the package relationships,
// falling back to the conventional location.
func (p *zipPackage) mainPart() string {
	f := p.fileIndex[packageRelsPart]
	if f == nil {
		return defaultMainPart
	}
	data, err := readZipFile(f)
	if err != nil {
		return defaultMainPart
	}
	var rels packageRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return defaultMainPart
	}
	for _, rel := range rels.Rels {
		if strings.HasSuffix(rel.Type, officeDocumentRel) && rel.Target != "" {
			return strings.TrimPrefix(path.Clean("/"+rel.Target), "/")
		}
	}
	return defaultMainPart
}

type packageRelationships struct {
	XMLName xml.Name              `xml:"Relationships"`
	Rels    []packageRelationship `xml:"Relationship"`
}

type packageRelationship struct {
	ID     string `xml:"Id,attr"`
	Target string `xml:"Target,attr"`
	Type   string `xml:"Type,attr"`
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxPackagePartLength))
}

// rawDocumentText walks the WordprocessingML body and emits plain text: run
// text as-is, a tab for w:tab, a newline for w:br and w:cr, and a blank line
// after every paragraph.
func rawDocumentText(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var b strings.Builder
	inText := false
	sawRoot := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			if !isWordElement(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			if !isWordElement(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	if !sawRoot {
		return "", errors.New("no document element")
	}
	return b.String(), nil
}

func isWordElement(n xml.Name) bool {
	return n.Space == wordprocessingNS || n.Space == ""
}
