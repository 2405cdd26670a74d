package store

import "fmt"

// vectorDim is the dimension of the statistics vector kept per analysis.
const vectorDim = 5

// schemaSQL returns the DDL for all tables.
func schemaSQL() string {
	return fmt.Sprintf(`
-- One row per successful analysis
CREATE TABLE IF NOT EXISTS analyses (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    file_name TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    char_count INTEGER NOT NULL,
    char_count_no_space INTEGER NOT NULL,
    word_count INTEGER NOT NULL,
    space_count INTEGER NOT NULL,
    image_count INTEGER NOT NULL,
    elapsed_ms INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Statistics vectors via sqlite-vec, keyed by analyses.seq
CREATE VIRTUAL TABLE IF NOT EXISTS vec_analyses USING vec0(
    analysis_seq INTEGER PRIMARY KEY,
    embedding float[%d]
);

CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`, vectorDim)
}
