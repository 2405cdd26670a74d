package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// PDFExtractor reads text runs and image paint operations from every page of
// a PDF through a PDFOpener.
type PDFExtractor struct {
	Opener PDFOpener
	// Concurrency bounds how many pages are read at once. Values below 1
	// read pages one at a time.
	Concurrency int
}

func (p *PDFExtractor) Format() Format { return FormatPDF }

// minPDFPageSize is the fewest bytes a page object can occupy. A page count
// larger than the file could hold is rejected before any page is read.
const minPDFPageSize = 16

type pdfPageContent struct {
	text   string
	images int
}

// Extract concatenates each page's runs separated by single spaces, appends
// one space after every page, and sums the image paint operations of all
// pages. Any page failure fails the whole document.
func (p *PDFExtractor) Extract(ctx context.Context, data []byte) (*ExtractedContent, error) {
	start := time.Now()

	doc, err := p.Opener.OpenPDF(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	total, err := doc.NumPage()
	if err != nil {
		return nil, fmt.Errorf("reading PDF page count: %w", err)
	}
	if total < 0 || total > len(data)/minPDFPageSize {
		return nil, fmt.Errorf("reading PDF page count: %d pages cannot fit in %d bytes", total, len(data))
	}

	workers := p.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		jobs     = make(chan int)
		pages    = make([]pdfPageContent, total)
		firstErr error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				pc, err := readPDFPage(doc, n)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("page %d: %w", n, err)
						cancel()
					}
					mu.Unlock()
					continue
				}
				pages[n-1] = pc
			}
		}()
	}

feed:
	for n := 1; n <= total; n++ {
		select {
		case jobs <- n:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var b strings.Builder
	images := 0
	for _, pc := range pages {
		b.WriteString(pc.text)
		b.WriteByte(' ')
		images += pc.images
	}

	slog.Debug("pdf: extraction complete",
		"pages", total, "images", images, "workers", workers,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &ExtractedContent{Text: b.String(), ImageCount: images}, nil
}

// readPDFPage reads one page. A panic in the backend fails only this page.
func readPDFPage(doc PDFDocument, n int) (pc pdfPageContent, err error) {
	defer recoverPDF(&err)

	page, err := doc.Page(n)
	if err != nil {
		return pdfPageContent{}, err
	}
	if page == nil {
		return pdfPageContent{}, errors.New("page not found")
	}

	runs, err := page.TextRuns()
	if err != nil {
		return pdfPageContent{}, fmt.Errorf("reading text: %w", err)
	}

	ops, err := page.DrawingOps()
	if err != nil {
		return pdfPageContent{}, fmt.Errorf("reading drawing operations: %w", err)
	}

	images := 0
	for _, op := range ops {
		if op.PaintsImage() {
			images++
		}
	}

	return pdfPageContent{text: strings.Join(runs, " "), images: images}, nil
}
