package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/brunobiangulo/docstat"
	"github.com/brunobiangulo/docstat/report"
	"github.com/brunobiangulo/docstat/store"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
)

func (a *app) printResult(res *docstat.Result) {
	titleColor.Fprintf(a.out, "%s", res.FileName)
	labelColor.Fprintf(a.out, " (%s, %s)\n", strings.ToUpper(string(res.Format)), report.FormatSize(res.FileSize))

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	st := res.Statistics
	fmt.Fprintf(w, "  Characters\t%s\n", report.FormatCount(st.CharCount))
	fmt.Fprintf(w, "  Characters (no spaces)\t%s\n", report.FormatCount(st.CharCountNoSpace))
	fmt.Fprintf(w, "  Words\t%s\n", report.FormatCount(st.WordCount))
	fmt.Fprintf(w, "  Spaces\t%s\n", report.FormatCount(st.SpaceCount))
	fmt.Fprintf(w, "  Images\t%s\n", report.FormatCount(st.ImageCount))
	_ = w.Flush()
}

// printFailure explains a failed file in terms the user can act on.
func (a *app) printFailure(path string, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, docstat.ErrUnsupportedFormat):
		msg = "unsupported format, choose a PDF or DOCX file"
	case errors.Is(err, docstat.ErrMalformedDocument):
		msg = "the document could not be read"
		if a.verbose {
			msg += ": " + err.Error()
		}
	}
	errorColor.Fprintf(a.errOut, "✗ %s: ", path)
	fmt.Fprintln(a.errOut, msg)
}

func (a *app) printHistory(results []docstat.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.ID,
			r.FileName,
			string(r.Format),
			report.FormatSize(r.FileSize),
			report.FormatCount(r.Statistics.WordCount),
			report.FormatCount(r.Statistics.ImageCount),
			r.AnalyzedAt.Local().Format(time.DateTime),
		})
	}
	a.table([]string{"ID", "FILE", "FORMAT", "SIZE", "WORDS", "IMAGES", "ANALYZED"}, rows)
}

func (a *app) printSimilar(similar []docstat.Similar) {
	rows := make([][]string, 0, len(similar))
	for _, s := range similar {
		rows = append(rows, []string{
			s.Result.ID,
			s.Result.FileName,
			report.FormatCount(s.Result.Statistics.WordCount),
			report.FormatCount(s.Result.Statistics.ImageCount),
			strconv.FormatFloat(s.Distance, 'f', 3, 64),
		})
	}
	a.table([]string{"ID", "FILE", "WORDS", "IMAGES", "DISTANCE"}, rows)
}

func (a *app) printSummary(sum *store.Summary) {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Analyses\t%s\n", report.FormatCount(sum.Analyses))
	fmt.Fprintf(w, "Words\t%s\n", report.FormatCount(int(sum.Words)))
	fmt.Fprintf(w, "Characters\t%s\n", report.FormatCount(int(sum.Chars)))
	fmt.Fprintf(w, "Images\t%s\n", report.FormatCount(int(sum.Images)))
	for _, format := range []string{"pdf", "docx"} {
		fmt.Fprintf(w, "  %s\t%s\n", strings.ToUpper(format), report.FormatCount(sum.ByFormat[format]))
	}
	_ = w.Flush()
}

// table prints a header, a dashed separator and rows in aligned columns.
func (a *app) table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
