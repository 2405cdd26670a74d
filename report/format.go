// Package report renders analysis results for people: human-readable sizes
// and counts, and spreadsheet exports of the analysis history.
package report

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders n bytes in base-1024 units with at most two decimals,
// e.g. 1536 -> "1.5 KB". Sizes beyond the GB range stay in GB.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}

	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}

	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatCount renders n with English thousands separators, e.g. "12,345".
func FormatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
