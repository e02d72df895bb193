package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// SQLiteRowStore implements RowStore over a single SQLite database holding
// files, metadata, files_fts and chunks_fts, in WAL mode for single-writer
// per-project access (the process lock enforces the single writer).
type SQLiteRowStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	tokenizerOnce sync.Once
	tokenizer     string // "trigram" or "unicode61", probed once per connection
}

var _ RowStore = (*SQLiteRowStore)(nil)

// NewSQLiteRowStore opens (creating if absent) the row store at path. An
// empty path opens an in-memory database, used in tests.
func NewSQLiteRowStore(path string) (*SQLiteRowStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create row store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open row store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteRowStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init row store schema: %w", err)
	}
	return s, nil
}

// probeFTSTokenizer determines once per connection whether the embedded
// SQLite build supports the trigram tokenizer, falling back to unicode61.
func (s *SQLiteRowStore) probeFTSTokenizer() string {
	s.tokenizerOnce.Do(func() {
		_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS __tokenizer_probe USING fts5(x, tokenize='trigram')`)
		if err == nil {
			_, _ = s.db.Exec(`DROP TABLE IF EXISTS __tokenizer_probe`)
			s.tokenizer = "trigram"
			return
		}
		s.tokenizer = "unicode61"
	})
	return s.tokenizer
}

func (s *SQLiteRowStore) initSchema() error {
	tokenizer := s.probeFTSTokenizer()

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL,
		content TEXT,
		language TEXT NOT NULL,
		vector_index_hash TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
	CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
		path UNINDEXED,
		content,
		tokenize='%s'
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		file_path UNINDEXED,
		chunk_index UNINDEXED,
		breadcrumb,
		content,
		tokenize='%s'
	);
	`, tokenizer, tokenizer)

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteRowStore) UpsertFiles(ctx context.Context, files []*FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, hash, mtime, size, content, language, vector_index_hash)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			hash=excluded.hash, mtime=excluded.mtime, size=excluded.size,
			content=excluded.content, language=excluded.language, vector_index_hash=NULL
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsertStmt.Close()

	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM files_fts WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare fts delete: %w", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO files_fts(path, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer insertFTS.Close()

	for _, f := range files {
		if _, err := upsertStmt.ExecContext(ctx, f.Path, f.Hash, f.MTime, f.Size, f.Content, f.Language); err != nil {
			return fmt.Errorf("upsert file %s: %w", f.Path, err)
		}
		if _, err := deleteFTS.ExecContext(ctx, f.Path); err != nil {
			return fmt.Errorf("delete files_fts %s: %w", f.Path, err)
		}
		if f.Content != nil {
			if _, err := insertFTS.ExecContext(ctx, f.Path, *f.Content); err != nil {
				return fmt.Errorf("insert files_fts %s: %w", f.Path, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteRowStore) TouchFiles(ctx context.Context, paths []string, mtime int64) error {
	if len(paths) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin touch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE files SET mtime = ? WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare touch: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, mtime, p); err != nil {
			return fmt.Errorf("touch %s: %w", p, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteRowStore) DeleteFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delFile, err := tx.PrepareContext(ctx, `DELETE FROM files WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare file delete: %w", err)
	}
	defer delFile.Close()

	delFTS, err := tx.PrepareContext(ctx, `DELETE FROM files_fts WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare fts delete: %w", err)
	}
	defer delFTS.Close()

	delChunkFTS, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("prepare chunk fts delete: %w", err)
	}
	defer delChunkFTS.Close()

	for _, p := range paths {
		if _, err := delFile.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("delete file %s: %w", p, err)
		}
		if _, err := delFTS.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("delete files_fts %s: %w", p, err)
		}
		if _, err := delChunkFTS.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("delete chunks_fts %s: %w", p, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteRowStore) SetVectorIndexHash(ctx context.Context, path, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE files SET vector_index_hash = ? WHERE path = ?`, hash, path)
	return err
}

func (s *SQLiteRowStore) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("row store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT path, hash, mtime, size, content, language, vector_index_hash
		FROM files WHERE path = ?`, path)
	f, err := scanFileRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (s *SQLiteRowStore) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("row store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, hash, mtime, size, content, language, vector_index_hash FROM files`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var result []*FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(r rowScanner) (*FileRecord, error) {
	var f FileRecord
	var content, vih sql.NullString
	if err := r.Scan(&f.Path, &f.Hash, &f.MTime, &f.Size, &content, &f.Language, &vih); err != nil {
		return nil, err
	}
	if content.Valid {
		c := content.String
		f.Content = &c
	}
	if vih.Valid {
		v := vih.String
		f.VectorIndexHash = &v
	}
	return &f, nil
}

func (s *SQLiteRowStore) GetFileContents(ctx context.Context, paths []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("row store is closed")
	}
	if len(paths) == 0 {
		return map[string]string{}, nil
	}

	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}

	query := fmt.Sprintf(`SELECT path, content FROM files WHERE path IN (%s) AND content IS NOT NULL`,
		strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get file contents: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string, len(paths))
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		result[path] = content
	}
	return result, rows.Err()
}

func (s *SQLiteRowStore) UpsertChunkFTS(ctx context.Context, path string, chunkRows []*ChunkFTSRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk fts transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("clear chunks_fts for %s: %w", path, err)
	}

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts(chunk_id, file_path, chunk_index, breadcrumb, content)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare chunk fts insert: %w", err)
	}
	defer insertStmt.Close()

	for _, row := range chunkRows {
		if _, err := insertStmt.ExecContext(ctx, row.ChunkID, row.FilePath, row.ChunkIndex, row.Breadcrumb, row.Content); err != nil {
			return fmt.Errorf("insert chunks_fts %s: %w", row.ChunkID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteRowStore) DeleteChunkFTS(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk fts delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("prepare chunk fts delete: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("delete chunks_fts %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// SearchFilesFTS and SearchChunksFTS both run the two-pass BM25 strategy
// pass A strict-AND at limit K, pass B relaxed-OR (only if pass A
// under-filled and there is more than one token) merged and deduplicated.
func (s *SQLiteRowStore) SearchFilesFTS(ctx context.Context, tokens []string, limit int) ([]*FTSResult, error) {
	return s.searchFTS(ctx, "files_fts", tokens, limit, false)
}

func (s *SQLiteRowStore) SearchChunksFTS(ctx context.Context, tokens []string, limit int) ([]*FTSResult, error) {
	return s.searchFTS(ctx, "chunks_fts", tokens, limit, true)
}

func (s *SQLiteRowStore) searchFTS(ctx context.Context, table string, tokens []string, limit int, isChunkTable bool) ([]*FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("row store is closed")
	}
	if len(tokens) == 0 || limit <= 0 {
		return []*FTSResult{}, nil
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(t, `"`, `""`))
	}

	seen := make(map[string]bool)
	var results []*FTSResult

	runPass := func(matchExpr string, passLimit int) error {
		if passLimit <= 0 {
			return nil
		}
		var query string
		if isChunkTable {
			query = `
				SELECT chunk_id, file_path, chunk_index, breadcrumb, content, -bm25(chunks_fts) AS score
				FROM chunks_fts WHERE chunks_fts MATCH ? ORDER BY score DESC LIMIT ?`
		} else {
			query = `
				SELECT path, content, -bm25(files_fts) AS score
				FROM files_fts WHERE files_fts MATCH ? ORDER BY score DESC LIMIT ?`
		}

		rows, err := s.db.QueryContext(ctx, query, matchExpr, passLimit)
		if err != nil {
			if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
				return nil
			}
			return fmt.Errorf("fts search %s: %w", table, err)
		}
		defer rows.Close()

		for rows.Next() {
			var res FTSResult
			if isChunkTable {
				if err := rows.Scan(&res.DocID, &res.FilePath, &res.ChunkIndex, &res.Breadcrumb, &res.Content, &res.Score); err != nil {
					return fmt.Errorf("scan chunk fts row: %w", err)
				}
			} else {
				if err := rows.Scan(&res.DocID, &res.Content, &res.Score); err != nil {
					return fmt.Errorf("scan file fts row: %w", err)
				}
				res.FilePath = res.DocID
			}
			if seen[res.DocID] {
				continue
			}
			seen[res.DocID] = true
			results = append(results, &res)
		}
		return rows.Err()
	}

	strictMatch := strings.Join(quoted, " AND ")
	if err := runPass(strictMatch, limit); err != nil {
		return nil, err
	}

	if len(results) < limit && len(tokens) > 1 {
		relaxedMatch := strings.Join(quoted, " OR ")
		buffer := 5
		if err := runPass(relaxedMatch, limit-len(results)+buffer); err != nil {
			return nil, err
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLiteRowStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, fmt.Errorf("row store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteRowStore) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// TruncateFiles drops all rows from files/files_fts/chunks_fts, used when a
// dimension-mismatch forces a full reindex.
func (s *SQLiteRowStore) TruncateFiles(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("row store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin truncate transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM files`, `DELETE FROM files_fts`, `DELETE FROM chunks_fts`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteRowStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
