package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when an analysis ID does not exist.
var ErrNotFound = errors.New("store: analysis not found")

// Analysis represents a row in the analyses table.
type Analysis struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	Format           string    `json:"format"`
	ContentHash      string    `json:"content_hash"`
	CharCount        int       `json:"char_count"`
	CharCountNoSpace int       `json:"char_count_no_space"`
	WordCount        int       `json:"word_count"`
	SpaceCount       int       `json:"space_count"`
	ImageCount       int       `json:"image_count"`
	ElapsedMs        int64     `json:"elapsed_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// SimilarAnalysis is an analysis with its distance from the query analysis.
type SimilarAnalysis struct {
	Analysis
	Distance float64 `json:"distance"`
}

// Summary aggregates the whole history.
type Summary struct {
	Analyses int            `json:"analyses"`
	Words    int64          `json:"words"`
	Chars    int64          `json:"chars"`
	Images   int64          `json:"images"`
	ByFormat map[string]int `json:"by_format"`
}

// Store wraps the SQLite database holding analysis history.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Analysis operations ---

// SaveAnalysis inserts an analysis and its statistics vector.
func (s *Store) SaveAnalysis(ctx context.Context, a Analysis) error {
	if a.ID == "" {
		return errors.New("store: analysis ID is required")
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO analyses (id, file_name, file_size, format, content_hash,
				char_count, char_count_no_space, word_count, space_count, image_count,
				elapsed_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.FileName, a.FileSize, a.Format, a.ContentHash,
			a.CharCount, a.CharCountNoSpace, a.WordCount, a.SpaceCount, a.ImageCount,
			a.ElapsedMs, created.UTC())
		if err != nil {
			return fmt.Errorf("inserting analysis: %w", err)
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_analyses (analysis_seq, embedding) VALUES (?, ?)",
			seq, serializeFloat32(statsVector(a))); err != nil {
			return fmt.Errorf("inserting vector: %w", err)
		}
		return nil
	})
}

const analysisColumns = `a.id, a.file_name, a.file_size, a.format, a.content_hash,
	a.char_count, a.char_count_no_space, a.word_count, a.space_count, a.image_count,
	a.elapsed_ms, a.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner, extra ...any) (Analysis, error) {
	var a Analysis
	dest := []any{&a.ID, &a.FileName, &a.FileSize, &a.Format, &a.ContentHash,
		&a.CharCount, &a.CharCountNoSpace, &a.WordCount, &a.SpaceCount, &a.ImageCount,
		&a.ElapsedMs, &a.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	return a, err
}

// GetAnalysis retrieves an analysis by ID.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+analysisColumns+" FROM analyses a WHERE a.id = ?", id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses returns the most recent analyses first. A limit of zero or
// less returns every row.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+analysisColumns+" FROM analyses a ORDER BY a.created_at DESC, a.seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindByHash returns the most recent analysis of the same bytes in the
// same format.
func (s *Store) FindByHash(ctx context.Context, format, hash string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisColumns+` FROM analyses a
		WHERE a.format = ? AND a.content_hash = ?
		ORDER BY a.created_at DESC, a.seq DESC LIMIT 1
	`, format, hash)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAnalysis removes an analysis and its vector.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		err := tx.QueryRowContext(ctx, "SELECT seq FROM analyses WHERE id = ?", id).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_analyses WHERE analysis_seq = ?", seq); err != nil {
			return fmt.Errorf("deleting vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM analyses WHERE seq = ?", seq); err != nil {
			return fmt.Errorf("deleting analysis: %w", err)
		}
		return nil
	})
}

// SimilarAnalyses returns up to k analyses whose statistics are nearest to
// those of the given analysis, closest first. The analysis itself is
// excluded.
func (s *Store) SimilarAnalyses(ctx context.Context, id string, k int) ([]SimilarAnalysis, error) {
	if k <= 0 {
		return nil, nil
	}

	var seq int64
	var embedding []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT a.seq, v.embedding FROM analyses a
		JOIN vec_analyses v ON v.analysis_seq = a.seq
		WHERE a.id = ?
	`, id).Scan(&seq, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+`, v.analysis_seq, v.distance
		FROM vec_analyses v
		JOIN analyses a ON a.seq = v.analysis_seq
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, embedding, k+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SimilarAnalysis
	for rows.Next() {
		var (
			other    int64
			distance float64
		)
		a, err := scanAnalysis(rows, &other, &distance)
		if err != nil {
			return nil, err
		}
		if other == seq {
			continue
		}
		results = append(results, SimilarAnalysis{Analysis: a, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Summarize returns totals over the whole history.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{ByFormat: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(word_count), 0), COALESCE(SUM(char_count), 0),
			COALESCE(SUM(image_count), 0)
		FROM analyses
	`).Scan(&sum.Analyses, &sum.Words, &sum.Chars, &sum.Images)
	if err != nil {
		return nil, fmt.Errorf("summing analyses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT format, COUNT(*) FROM analyses GROUP BY format")
	if err != nil {
		return nil, fmt.Errorf("counting formats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var format string
		var n int
		if err := rows.Scan(&format, &n); err != nil {
			return nil, err
		}
		sum.ByFormat[format] = n
	}
	return sum, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// statsVector is log1p of each count, in Statistics field order.
func statsVector(a Analysis) []float32 {
	counts := [vectorDim]int{a.CharCount, a.CharCountNoSpace, a.WordCount, a.SpaceCount, a.ImageCount}
	v := make([]float32, vectorDim)
	for i, c := range counts {
		v[i] = float32(math.Log1p(float64(max(c, 0))))
	}
	return v
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
