package docstat

import (
	"errors"
	"fmt"

	"github.com/brunobiangulo/docstat/parser"
)

var (
	// ErrUnsupportedFormat is returned for file names whose extension is not
	// a supported document format.
	ErrUnsupportedFormat = errors.New("docstat: unsupported document format")

	// ErrMalformedDocument is returned when a document of a supported format
	// cannot be read.
	ErrMalformedDocument = errors.New("docstat: malformed document")

	// ErrFileTooLarge is returned when a document exceeds Config.MaxFileSize.
	ErrFileTooLarge = errors.New("docstat: file too large")

	// ErrAnalysisNotFound is returned when an analysis ID does not exist.
	ErrAnalysisNotFound = errors.New("docstat: analysis not found")

	// ErrHistoryDisabled is returned by history operations when the engine
	// runs without a store.
	ErrHistoryDisabled = errors.New("docstat: analysis history disabled")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docstat: invalid configuration")
)

// AnalysisError describes why a document could not be analyzed.
// errors.Is matches Kind; errors.Unwrap yields the underlying cause.
type AnalysisError struct {
	Kind     error
	Format   parser.Format
	FileName string
	Err      error
}

func (e *AnalysisError) Error() string {
	msg := e.Kind.Error()
	if e.Format != "" {
		msg += " (" + string(e.Format) + ")"
	}
	if e.FileName != "" {
		msg += fmt.Sprintf(" %q", e.FileName)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Is(target error) bool { return target == e.Kind }

func (e *AnalysisError) Unwrap() error { return e.Err }
