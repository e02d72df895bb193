package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/contextweaver/contextweaver/internal/chunk"
	"github.com/contextweaver/contextweaver/internal/gitignore"
	"github.com/contextweaver/contextweaver/internal/store"
)

// EnvIgnorePatterns is the newline-separated ignore-pattern environment
// variable consulted first in the ignore-resolution order, ahead of
// .gitignore and .contextweaverignore.
const EnvIgnorePatterns = "IGNORE_PATTERNS"

// Scanner crawls a project directory, classifies each file against the
// last known scan state, reconciles the row store, and produces the
// work-list the Indexer needs for its vector-indexing phase.
type Scanner struct {
	rowStore store.RowStore
	splitter *chunk.SemanticSplitter
}

// NewScanner binds a Scanner to the row store and chunker it will drive.
func NewScanner(rowStore store.RowStore, splitter *chunk.SemanticSplitter) *Scanner {
	return &Scanner{rowStore: rowStore, splitter: splitter}
}

// fileOutcome is one file's per-file processing result, produced
// concurrently within a batch before the batch is folded into the scan's
// running Stats and reconcile buffers.
type fileOutcome struct {
	path       string
	status     Status
	hash       string
	mtime      int64
	size       int64
	content    string
	language   string
	chunks     []*chunk.ProcessedChunk
	selfHeal   bool
	needsTouch bool // unchanged by hash but disk mtime moved; persist the new mtime
}

// Scan runs the crawl/filter/process/reconcile pipeline for rootPath and
// returns scan stats plus the files the Indexer must (re)embed: the union
// of added/modified files, self-healing unchanged files whose vectors lag
// their content hash, and deletion tombstones.
func (s *Scanner) Scan(ctx context.Context, rootPath string, opts Options) (*Stats, []*FileWork, error) {
	runID := uuid.NewString()

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: resolve root %q: %w", rootPath, err)
	}

	forceReindex, err := s.reconcileEmbeddingDimensions(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	if forceReindex {
		if err := s.rowStore.TruncateFiles(ctx); err != nil {
			return nil, nil, fmt.Errorf("scanner: truncate for reindex: %w", err)
		}
	}

	known, err := s.loadKnown(ctx)
	if err != nil {
		return nil, nil, err
	}

	matcher, err := buildIgnoreMatcher(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: build ignore matcher: %w", err)
	}

	paths, err := crawl(absRoot, matcher)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: crawl %s: %w", absRoot, err)
	}

	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = clamp(runtime.NumCPU()-1, 4, 32)
	}

	stats := &Stats{RunID: runID}
	work := make([]*FileWork, 0, len(paths))
	seen := make(map[string]bool, len(paths))

	var (
		mu          sync.Mutex
		touchGroups = map[int64][]string{}
		upserts     []*store.FileRecord
	)

	for batchStart := 0; batchStart < len(paths); batchStart += BatchSize {
		batch := paths[batchStart:min(batchStart+BatchSize, len(paths))]
		outcomes := make([]*fileOutcome, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, relPath := range batch {
			i, relPath := i, relPath
			g.Go(func() error {
				outcome, procErr := s.processFile(gctx, absRoot, relPath, known)
				if procErr != nil {
					mu.Lock()
					stats.Errors++
					mu.Unlock()
					slog.Warn("scanner: processing file failed",
						slog.String("run_id", runID), slog.String("path", relPath), slog.String("error", procErr.Error()))
					return nil
				}
				outcomes[i] = outcome
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, fmt.Errorf("scanner: batch processing: %w", err)
		}

		for _, outcome := range outcomes {
			if outcome == nil {
				continue
			}
			seen[outcome.path] = true
			switch outcome.status {
			case StatusSkipped:
				stats.Skipped++
			case StatusUnchanged:
				stats.Unchanged++
				if outcome.needsTouch {
					touchGroups[outcome.mtime] = append(touchGroups[outcome.mtime], outcome.path)
				}
				if outcome.selfHeal {
					work = append(work, &FileWork{
						Path: outcome.path, Status: StatusUnchanged,
						Hash: outcome.hash, Language: outcome.language,
					})
				}
			case StatusAdded, StatusModified:
				if outcome.status == StatusAdded {
					stats.Added++
				} else {
					stats.Modified++
				}
				content := outcome.content
				upserts = append(upserts, &store.FileRecord{
					Path: outcome.path, Hash: outcome.hash, MTime: outcome.mtime,
					Size: outcome.size, Content: &content, Language: outcome.language,
				})
				work = append(work, &FileWork{
					Path: outcome.path, Status: outcome.status, Content: outcome.content,
					Hash: outcome.hash, Language: outcome.language, Chunks: outcome.chunks,
				})
			}
		}
	}

	deleted := deletedPaths(known, seen)
	stats.Deleted = len(deleted)
	for _, p := range deleted {
		work = append(work, &FileWork{Path: p, Status: StatusDeleted})
	}

	if err := s.reconcile(ctx, upserts, touchGroups, deleted); err != nil {
		return nil, nil, err
	}

	return stats, work, nil
}

// reconcileEmbeddingDimensions compares the configured embedding dimension
// against the persisted value, persists the new value, and reports whether
// a mismatch requires a full reindex.
func (s *Scanner) reconcileEmbeddingDimensions(ctx context.Context, opts Options) (bool, error) {
	if opts.DisableVectorIndex {
		return false, nil
	}
	stored, ok, err := s.rowStore.GetMetadata(ctx, store.MetadataKeyEmbeddingDimensions)
	if err != nil {
		return false, fmt.Errorf("scanner: read embedding_dimensions metadata: %w", err)
	}
	want := strconv.Itoa(opts.EmbeddingDimensions)
	forceReindex := !ok || stored != want
	if err := s.rowStore.SetMetadata(ctx, store.MetadataKeyEmbeddingDimensions, want); err != nil {
		return false, fmt.Errorf("scanner: persist embedding_dimensions metadata: %w", err)
	}
	return forceReindex, nil
}

func (s *Scanner) loadKnown(ctx context.Context) (map[string]knownFile, error) {
	records, err := s.rowStore.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: list known files: %w", err)
	}
	known := make(map[string]knownFile, len(records))
	for _, r := range records {
		known[r.Path] = knownFile{hash: r.Hash, mtime: r.MTime, size: r.Size, vectorIndexHash: r.VectorIndexHash}
	}
	return known, nil
}

// processFile classifies and, when necessary, reads/chunks a single
// crawled path against its last-known state.
func (s *Scanner) processFile(ctx context.Context, absRoot, relPath string, known map[string]knownFile) (*fileOutcome, error) {
	absPath := filepath.Join(absRoot, relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSize {
		return &fileOutcome{path: relPath, status: StatusSkipped}, nil
	}

	prior, wasKnown := known[relPath]
	mtimeMillis := info.ModTime().UnixMilli()
	if wasKnown && prior.mtime == mtimeMillis && prior.size == info.Size() {
		return &fileOutcome{
			path: relPath, status: StatusUnchanged, hash: prior.hash,
			selfHeal: needsVectorIndex(prior.hash, prior.vectorIndexHash),
		}, nil
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	content, ok := decodeToUTF8(raw)
	if !ok || isBinary(content) {
		return &fileOutcome{path: relPath, status: StatusSkipped}, nil
	}

	hash := sha256Hex(content)
	if wasKnown && prior.hash == hash {
		return &fileOutcome{
			path: relPath, status: StatusUnchanged, hash: hash, mtime: mtimeMillis, needsTouch: true,
			selfHeal: needsVectorIndex(hash, prior.vectorIndexHash),
		}, nil
	}

	language := LanguageForPath(relPath)
	if language == "json" && isLockFileJSON(relPath) {
		return &fileOutcome{path: relPath, status: StatusSkipped}, nil
	}

	chunks, chunkErr := s.splitter.ChunkSource(ctx, relPath, content, language)
	if chunkErr != nil {
		slog.Warn("scanner: AST chunking failed, falling back",
			slog.String("path", relPath), slog.String("error", chunkErr.Error()))
	}

	status := StatusAdded
	if wasKnown {
		status = StatusModified
	}
	return &fileOutcome{
		path: relPath, status: status, hash: hash, mtime: mtimeMillis, size: info.Size(),
		content: content, language: language, chunks: chunks,
	}, nil
}

func needsVectorIndex(hash string, vectorIndexHash *string) bool {
	return vectorIndexHash == nil || *vectorIndexHash != hash
}

// reconcile applies the crawl's outcome to the row store: upsert
// added/modified files (content + NULL vector_index_hash, mirroring
// files_fts), touch mtimes for unchanged-by-hash files whose mtime moved,
// and delete rows absent from the crawl (purging files_fts/chunks_fts).
func (s *Scanner) reconcile(ctx context.Context, upserts []*store.FileRecord, touchGroups map[int64][]string, deleted []string) error {
	if len(upserts) > 0 {
		if err := s.rowStore.UpsertFiles(ctx, upserts); err != nil {
			return fmt.Errorf("scanner: upsert files: %w", err)
		}
	}
	for mtime, paths := range touchGroups {
		if err := s.rowStore.TouchFiles(ctx, paths, mtime); err != nil {
			return fmt.Errorf("scanner: touch files: %w", err)
		}
	}
	if len(deleted) > 0 {
		if err := s.rowStore.DeleteFiles(ctx, deleted); err != nil {
			return fmt.Errorf("scanner: delete files: %w", err)
		}
	}
	return nil
}

// buildIgnoreMatcher composes the ignore-resolution order: $IGNORE_PATTERNS,
// then every .gitignore, then every .contextweaverignore found under root.
func buildIgnoreMatcher(absRoot string) (*gitignore.Matcher, error) {
	m := gitignore.New()
	if raw := os.Getenv(EnvIgnorePatterns); raw != "" {
		for _, p := range strings.Split(raw, "\n") {
			if p = strings.TrimSpace(p); p != "" {
				m.AddPattern(p)
			}
		}
	}
	if err := addIgnoreFilesRecursive(m, absRoot, ".gitignore"); err != nil {
		return nil, err
	}
	if err := addIgnoreFilesRecursive(m, absRoot, ".contextweaverignore"); err != nil {
		return nil, err
	}
	return m, nil
}

func addIgnoreFilesRecursive(m *gitignore.Matcher, absRoot, filename string) error {
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != filename {
			return nil
		}
		base, relErr := filepath.Rel(absRoot, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if base == "." {
			base = ""
		} else {
			base = filepath.ToSlash(base)
		}
		return m.AddFromFile(path, base)
	})
}

// crawl walks absRoot, applying matcher and then the extension whitelist,
// and returns POSIX-style paths relative to absRoot, sorted for
// deterministic batch ordering.
func crawl(absRoot string, matcher *gitignore.Matcher) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matcher.Match(relPath, false) {
			return nil
		}
		if LanguageForPath(relPath) == "" {
			return nil
		}
		paths = append(paths, relPath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func deletedPaths(known map[string]knownFile, seen map[string]bool) []string {
	var deleted []string
	for p := range known {
		if !seen[p] {
			deleted = append(deleted, p)
		}
	}
	sort.Strings(deleted)
	return deleted
}

// isLockFileJSON matches the dependency-lockfile skip rule: any
// "*-lock.json" basename (covers "package-lock.json") or any path with a
// "node_modules" segment.
func isLockFileJSON(relPath string) bool {
	if strings.HasSuffix(filepath.Base(relPath), "-lock.json") {
		return true
	}
	for _, seg := range strings.Split(relPath, "/") {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
