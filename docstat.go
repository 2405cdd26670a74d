// Package docstat computes descriptive statistics (characters, words,
// whitespace, images) for PDF and DOCX documents.
package docstat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/docstat/cache"
	"github.com/brunobiangulo/docstat/parser"
	"github.com/brunobiangulo/docstat/stats"
	"github.com/brunobiangulo/docstat/store"
)

// Engine is the main entry point for document analysis.
type Engine interface {
	// Analyze classifies the document by name, extracts its text and image
	// count, and computes statistics. It fails as a whole or not at all.
	Analyze(ctx context.Context, data []byte, name string) (*Result, error)

	// AnalyzeFile reads path and analyzes it under its base name.
	AnalyzeFile(ctx context.Context, path string) (*Result, error)

	// HistoryEnabled reports whether analyses are recorded.
	HistoryEnabled() bool

	// ListAnalyses returns recorded analyses, newest first.
	ListAnalyses(ctx context.Context, limit int) ([]Result, error)

	// GetAnalysis returns a recorded analysis.
	GetAnalysis(ctx context.Context, id string) (*Result, error)

	// DeleteAnalysis removes a recorded analysis.
	DeleteAnalysis(ctx context.Context, id string) error

	// SimilarAnalyses returns up to k recorded analyses whose statistics are
	// closest to those of id.
	SimilarAnalyses(ctx context.Context, id string, k int) ([]Similar, error)

	// Summary returns totals over all recorded analyses.
	Summary(ctx context.Context) (*store.Summary, error)

	// Close releases the store and cache.
	Close() error
}

// Result is the outcome of one successful analysis.
type Result struct {
	ID          string           `json:"id"`
	FileName    string           `json:"file_name"`
	FileSize    int64            `json:"file_size"`
	Format      parser.Format    `json:"format"`
	ContentHash string           `json:"content_hash"`
	Statistics  stats.Statistics `json:"statistics"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
	ElapsedMs   int64            `json:"elapsed_ms"`
}

// Similar is a recorded analysis and its distance from a query analysis.
type Similar struct {
	Result   Result  `json:"result"`
	Distance float64 `json:"distance"`
}

// Option configures the engine beyond Config.
type Option func(*engineOptions)

type engineOptions struct {
	pdfOpener     parser.PDFOpener
	packageOpener parser.PackageOpener
	cache         cache.Cache
	store         *store.Store
	noHistory     bool
	now           func() time.Time
}

// WithPDFOpener substitutes the PDF content model backend.
func WithPDFOpener(o parser.PDFOpener) Option {
	return func(opts *engineOptions) { opts.pdfOpener = o }
}

// WithPackageOpener substitutes the DOCX container backend.
func WithPackageOpener(o parser.PackageOpener) Option {
	return func(opts *engineOptions) { opts.packageOpener = o }
}

// WithCache uses c instead of the Redis cache described by Config.Cache.
func WithCache(c cache.Cache) Option {
	return func(opts *engineOptions) { opts.cache = c }
}

// WithStore records history in s instead of opening Config.DBPath. The
// engine takes ownership and closes s.
func WithStore(s *store.Store) Option {
	return func(opts *engineOptions) { opts.store = s }
}

// WithoutHistory disables recording regardless of Config.History.
func WithoutHistory() Option {
	return func(opts *engineOptions) { opts.noHistory = true }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg     Config
	parsers *parser.Registry
	cache   cache.Cache
	store   *store.Store
	now     func() time.Time
}

// New creates an engine. The history store is opened when Config.History is
// set, and the Redis cache is connected when Config.Cache.Addr is set.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var regOpts []parser.RegistryOption
	if o.pdfOpener != nil {
		regOpts = append(regOpts, parser.WithPDFOpener(o.pdfOpener))
	}
	if o.packageOpener != nil {
		regOpts = append(regOpts, parser.WithPackageOpener(o.packageOpener))
	}
	regOpts = append(regOpts, parser.WithPageConcurrency(cfg.PageConcurrency))

	e := &engine{
		cfg:     cfg,
		parsers: parser.NewRegistry(regOpts...),
		cache:   o.cache,
		store:   o.store,
		now:     o.now,
	}

	if o.noHistory {
		if e.store != nil {
			e.store.Close()
		}
		e.store = nil
	} else if e.store == nil && cfg.History {
		dbPath := cfg.resolveDBPath()
		s, err := store.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		slog.Info("history store opened", "path", dbPath)
		e.store = s
	}

	if e.cache == nil && cfg.Cache.Addr != "" {
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			if e.store != nil {
				e.store.Close()
			}
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		e.cache = c
	}

	return e, nil
}

// Analyze runs classify, extract and calculate over one document buffer.
func (e *engine) Analyze(ctx context.Context, data []byte, name string) (*Result, error) {
	start := time.Now()

	format, err := parser.Classify(name)
	if err != nil {
		return nil, &AnalysisError{Kind: ErrUnsupportedFormat, FileName: name, Err: err}
	}

	if e.cfg.MaxFileSize > 0 && int64(len(data)) > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, name, len(data), e.cfg.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := contentHash(data)

	st, cached := e.knownStatistics(ctx, format, hash)
	if !cached {
		ex, err := e.parsers.Get(format)
		if err != nil {
			return nil, &AnalysisError{Kind: ErrUnsupportedFormat, Format: format, FileName: name, Err: err}
		}

		content, err := ex.Extract(ctx, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("analyze: extraction failed", "file", name, "format", format, "error", err)
			return nil, &AnalysisError{Kind: ErrMalformedDocument, Format: format, FileName: name, Err: err}
		}

		st = stats.Calculate(content.Text).WithImages(content.ImageCount)
		e.storeStatistics(ctx, format, hash, st)
	}

	res := &Result{
		ID:          uuid.NewString(),
		FileName:    name,
		FileSize:    int64(len(data)),
		Format:      format,
		ContentHash: hash,
		Statistics:  st,
		AnalyzedAt:  e.now().UTC(),
		ElapsedMs:   time.Since(start).Milliseconds(),
	}

	if e.store != nil {
		if err := e.store.SaveAnalysis(ctx, toAnalysis(res)); err != nil {
			slog.Warn("analyze: recording history failed", "id", res.ID, "error", err)
		}
	}

	slog.Info("analyze: complete",
		"file", name, "format", format, "words", st.WordCount, "images", st.ImageCount,
		"cached", cached, "elapsed", time.Since(start).Round(time.Millisecond))

	return res, nil
}

// AnalyzeFile reads a document from disk and analyzes it.
func (e *engine) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	name := filepath.Base(path)
	if _, err := parser.Classify(name); err != nil {
		return nil, &AnalysisError{Kind: ErrUnsupportedFormat, FileName: name, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if e.cfg.MaxFileSize > 0 && info.Size() > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, name, info.Size(), e.cfg.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.Analyze(ctx, data, name)
}

// knownStatistics returns statistics computed earlier for the same bytes,
// from the cache or else from the history.
func (e *engine) knownStatistics(ctx context.Context, format parser.Format, hash string) (stats.Statistics, bool) {
	if st, ok := e.cachedStatistics(ctx, format, hash); ok {
		return st, true
	}
	if e.store == nil {
		return stats.Statistics{}, false
	}

	a, err := e.store.FindByHash(ctx, string(format), hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("history: lookup by hash failed", "format", format, "error", err)
		}
		return stats.Statistics{}, false
	}
	slog.Debug("history: reusing earlier analysis", "id", a.ID, "format", format)

	st := fromAnalysis(*a).Statistics
	e.storeStatistics(ctx, format, hash, st)
	return st, true
}

func (e *engine) cachedStatistics(ctx context.Context, format parser.Format, hash string) (stats.Statistics, bool) {
	if e.cache == nil {
		return stats.Statistics{}, false
	}
	st, err := e.cache.Get(ctx, string(format), hash)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.Warn("cache: get failed", "format", format, "error", err)
		}
		return stats.Statistics{}, false
	}
	return st, true
}

func (e *engine) storeStatistics(ctx context.Context, format parser.Format, hash string, st stats.Statistics) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, string(format), hash, st); err != nil {
		slog.Warn("cache: set failed", "format", format, "error", err)
	}
}

func (e *engine) HistoryEnabled() bool { return e.store != nil }

func (e *engine) ListAnalyses(ctx context.Context, limit int) ([]Result, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	rows, err := e.store.ListAnalyses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	results := make([]Result, 0, len(rows))
	for _, a := range rows {
		results = append(results, fromAnalysis(a))
	}
	return results, nil
}

func (e *engine) GetAnalysis(ctx context.Context, id string) (*Result, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	a, err := e.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	r := fromAnalysis(*a)
	return &r, nil
}

func (e *engine) DeleteAnalysis(ctx context.Context, id string) error {
	if e.store == nil {
		return ErrHistoryDisabled
	}
	return mapStoreError(e.store.DeleteAnalysis(ctx, id))
}

func (e *engine) SimilarAnalyses(ctx context.Context, id string, k int) ([]Similar, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	rows, err := e.store.SimilarAnalyses(ctx, id, k)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]Similar, 0, len(rows))
	for _, r := range rows {
		out = append(out, Similar{Result: fromAnalysis(r.Analysis), Distance: r.Distance})
	}
	return out, nil
}

func (e *engine) Summary(ctx context.Context) (*store.Summary, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	return e.store.Summarize(ctx)
}

// Close cleanly shuts down the engine.
func (e *engine) Close() error {
	var errs []error
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrAnalysisNotFound, err)
	}
	return err
}

func toAnalysis(r *Result) store.Analysis {
	return store.Analysis{
		ID:               r.ID,
		FileName:         r.FileName,
		FileSize:         r.FileSize,
		Format:           string(r.Format),
		ContentHash:      r.ContentHash,
		CharCount:        r.Statistics.CharCount,
		CharCountNoSpace: r.Statistics.CharCountNoSpace,
		WordCount:        r.Statistics.WordCount,
		SpaceCount:       r.Statistics.SpaceCount,
		ImageCount:       r.Statistics.ImageCount,
		ElapsedMs:        r.ElapsedMs,
		CreatedAt:        r.AnalyzedAt,
	}
}

func fromAnalysis(a store.Analysis) Result {
	return Result{
		ID:          a.ID,
		FileName:    a.FileName,
		FileSize:    a.FileSize,
		Format:      parser.Format(a.Format),
		ContentHash: a.ContentHash,
		Statistics: stats.Statistics{
			CharCount:        a.CharCount,
			CharCountNoSpace: a.CharCountNoSpace,
			WordCount:        a.WordCount,
			SpaceCount:       a.SpaceCount,
			ImageCount:       a.ImageCount,
		},
		AnalyzedAt: a.CreatedAt,
		ElapsedMs:  a.ElapsedMs,
	}
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
