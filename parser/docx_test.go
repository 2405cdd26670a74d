package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/brunobiangulo/docstat/parser/parsertest"
)

func TestDOCXExtractorMediaCount(t *testing.T) {
	tests := []struct {
		name  string
		media map[string][]byte
		extra map[string][]byte
		want  int
	}{
		{"no media", nil, nil, 0},
		{"three media entries", map[string][]byte{
			"image1.png":  []byte("png"),
			"image2.jpeg": []byte("jpeg"),
			"image3.emf":  []byte("emf"),
		}, nil, 3},
		{"nested entries count", map[string][]byte{
			"image1.png":     []byte("png"),
			"sub/image2.png": []byte("png"),
		}, nil, 2},
		{"entries outside media ignored", nil, map[string][]byte{
			"word/mediafile.png":      []byte("png"),
			"word/embeddings/obj.bin": []byte("bin"),
			"media/image1.png":        []byte("png"),
		}, 0},
	}

	ex := &DOCXExtractor{Opener: NewPackageOpener()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := parsertest.DOCX{Paragraphs: []string{"Body"}, Media: tt.media, Extra: tt.extra}.Bytes()
			got, err := ex.Extract(context.Background(), data)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.ImageCount != tt.want {
				t.Errorf("ImageCount = %d, want %d", got.ImageCount, tt.want)
			}
		})
	}
}

func TestDOCXExtractorText(t *testing.T) {
	tests := []struct {
		name string
		doc  parsertest.DOCX
		want string
	}{
		{
			name: "paragraphs end with blank line",
			doc:  parsertest.DOCX{Paragraphs: []string{"Hello world", "Second"}},
			want: "Hello world\n\nSecond\n\n",
		},
		{
			name: "runs concatenate",
			doc:  parsertest.DOCX{Body: `<w:p><w:r><w:t>Hel</w:t></w:r><w:r><w:t>lo</w:t></w:r></w:p>`},
			want: "Hello\n\n",
		},
		{
			name: "tabs and breaks",
			doc:  parsertest.DOCX{Body: `<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`},
			want: "a\tb\nc\n\n",
		},
		{
			name: "table cells",
			doc: parsertest.DOCX{Body: `<w:tbl><w:tr>` +
				`<w:tc><w:p><w:r><w:t>A1</w:t></w:r></w:p></w:tc>` +
				`<w:tc><w:p><w:r><w:t>B1</w:t></w:r></w:p></w:tc>` +
				`</w:tr></w:tbl>`},
			want: "A1\n\nB1\n\n",
		},
		{
			name: "non-text elements skipped",
			doc:  parsertest.DOCX{Body: `<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Title</w:t></w:r></w:p>`},
			want: "Title\n\n",
		},
		{
			name: "empty body",
			doc:  parsertest.DOCX{Body: `<w:sectPr/>`},
			want: "",
		},
		{
			name: "main part from relationships",
			doc:  parsertest.DOCX{Paragraphs: []string{"Moved"}, MainPart: "word/document2.xml"},
			want: "Moved\n\n",
		},
	}

	ex := &DOCXExtractor{Opener: NewPackageOpener()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.Extract(context.Background(), tt.doc.Bytes())
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestDOCXExtractorMalformed(t *testing.T) {
	var noRels bytes.Buffer
	w := zip.NewWriter(&noRels)
	addZipFile(t, w, "word/media/image1.png", []byte("png"))
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}

	inputs := map[string][]byte{
		"empty":             nil,
		"not a zip":         []byte("PK? definitely not a zip archive"),
		"missing main part": parsertest.DOCX{OmitMainPart: true}.Bytes(),
		"no package parts":  noRels.Bytes(),
		"broken xml":        parsertest.DOCX{Body: `<w:p><w:r><w:t>unterminated`}.Bytes(),
	}

	ex := &DOCXExtractor{Opener: NewPackageOpener()}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ex.Extract(context.Background(), data)
			if err == nil {
				t.Fatalf("expected error, got %+v", got)
			}
		})
	}
}

func TestDOCXExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &DOCXExtractor{Opener: NewPackageOpener()}
	_, err := ex.Extract(ctx, parsertest.TextDOCX("text"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract error = %v, want context.Canceled", err)
	}
}

func TestPackageEntriesUnder(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	addZipFile(t, w, "word/media/", nil)
	addZipFile(t, w, "word/media/b.png", []byte("b"))
	addZipFile(t, w, "word/media/a.png", []byte("a"))
	addZipFile(t, w, "word/document.xml", []byte("<w:document/>"))
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}

	pkg, err := NewPackageOpener().OpenPackage(buf.Bytes())
	if err != nil {
		t.Fatalf("OpenPackage: %v", err)
	}

	got := pkg.EntriesUnder("word/media/")
	want := []string{"word/media/a.png", "word/media/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EntriesUnder = %v, want %v", got, want)
	}

	if got := pkg.EntriesUnder("customXml/"); got == nil || len(got) != 0 {
		t.Errorf("EntriesUnder(missing) = %#v, want empty slice", got)
	}
}

func addZipFile(t *testing.T, w *zip.Writer, name string, data []byte) {
	t.Helper()
	fw, err := w.Create(name)
	if err != nil {
		t.Fatalf("creating zip entry %s: %v", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("writing zip entry %s: %v", name, err)
	}
}
