package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWVectorStore implements VectorStore using coder/hnsw. Chunk identity
// (file_path, file_hash, chunk_index) is carried alongside the ANN graph's
// internal uint64 keys so monotonic upsert and exact per-file lookups don't
// depend on the graph at all.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// dir is the backing directory for Save/Load. Empty means the store is
	// in-memory only (used by tests that don't need persistence).
	dir string

	nextKey uint64
	byKey   map[uint64]*ChunkRecord
	byID    map[string]uint64 // ChunkID() -> graph key

	// byPath indexes current chunk IDs per file path, for GetFileChunks and
	// the monotonic-upsert delete-by-stale-hash step.
	byPath map[string]map[string]uint64 // path -> chunkID -> graph key

	closed bool
}

var _ VectorStore = (*HNSWVectorStore)(nil)

// hnswMetadata captures everything but the ANN graph itself needed to
// reconstruct a HNSWVectorStore: chunk identity/content and the ID
// assignment used to keep graph keys stable across a save/load cycle.
type hnswMetadata struct {
	ByKey   map[uint64]*ChunkRecord
	ByID    map[string]uint64
	ByPath  map[string]map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

const (
	hnswIndexFile = "index.hnsw"
	hnswMetaFile  = "index.hnsw.meta"
)

// NewHNSWVectorStore creates an empty, in-memory-only vector store for the
// given config. Use OpenHNSWVectorStore for a store that persists across
// process restarts.
func NewHNSWVectorStore(cfg VectorStoreConfig) *HNSWVectorStore {
	return newHNSWVectorStore("", cfg)
}

// OpenHNSWVectorStore opens (or creates) a vector store backed by dir. If
// dir already holds a saved index, it is loaded and cfg.Dimensions is
// ignored in favor of the persisted config, since the graph's vectors are
// only valid at the dimensionality they were inserted with.
func OpenHNSWVectorStore(dir string, cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	s := newHNSWVectorStore(dir, cfg)

	if _, err := os.Stat(filepath.Join(dir, hnswMetaFile)); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("stat vector store metadata: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load vector store: %w", err)
	}
	return s, nil
}

func newHNSWVectorStore(dir string, cfg VectorStoreConfig) *HNSWVectorStore {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := newGraph(cfg)

	return &HNSWVectorStore{
		graph:  graph,
		config: cfg,
		dir:    dir,
		byKey:  make(map[uint64]*ChunkRecord),
		byID:   make(map[string]uint64),
		byPath: make(map[string]map[string]uint64),
	}
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

func (s *HNSWVectorStore) insertLocked(rec *ChunkRecord) error {
	if len(rec.Vector) != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(rec.Vector)}
	}
	id := rec.ChunkID()

	if existingKey, exists := s.byID[id]; exists {
		delete(s.byKey, existingKey)
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	if s.config.Metric == "cos" {
		normalizeInPlace(vec)
	}

	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, vec))

	s.byKey[key] = rec
	s.byID[id] = key

	if s.byPath[rec.FilePath] == nil {
		s.byPath[rec.FilePath] = make(map[string]uint64)
	}
	s.byPath[rec.FilePath][id] = key

	return nil
}

// UpsertFile performs the monotonic update for one file: insert new records
// first, then delete any existing record for the path whose FileHash
// differs from NewHash. A crash between the two steps leaves old and new
// coexisting; GetFileChunks/Search dedup by ChunkID so queries stay correct.
func (s *HNSWVectorStore) UpsertFile(ctx context.Context, upsert *FileUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, rec := range upsert.Records {
		rec.FileHash = upsert.NewHash
		if err := s.insertLocked(rec); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ChunkID(), err)
		}
	}

	s.deleteStaleLocked(upsert.Path, upsert.NewHash)
	return nil
}

// deleteStaleLocked removes records for path whose FileHash != keepHash.
func (s *HNSWVectorStore) deleteStaleLocked(path, keepHash string) {
	ids, ok := s.byPath[path]
	if !ok {
		return
	}
	for id, key := range ids {
		rec, exists := s.byKey[key]
		if !exists || rec.FileHash == keepHash {
			continue
		}
		delete(s.byKey, key)
		delete(s.byID, id)
		delete(ids, id)
	}
}

// BatchUpsertFiles groups files into sub-batches of ≤MaxFilesPerSubBatch
// files and ≤MaxRecordsPerSubBatch records, applying UpsertFile's
// insert-then-delete ordering per sub-batch to bound native memory.
func (s *HNSWVectorStore) BatchUpsertFiles(ctx context.Context, files []*FileUpsert) error {
	var batch []*FileUpsert
	recordCount := 0

	flush := func() error {
		for _, u := range batch {
			if err := s.UpsertFile(ctx, u); err != nil {
				return err
			}
		}
		batch = nil
		recordCount = 0
		return nil
	}

	for _, u := range files {
		if len(batch) >= MaxFilesPerSubBatch || recordCount+len(u.Records) > MaxRecordsPerSubBatch {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, u)
		recordCount += len(u.Records)
	}
	return flush()
}

func (s *HNSWVectorStore) DeleteFiles(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, path := range paths {
		ids, ok := s.byPath[path]
		if !ok {
			continue
		}
		for id, key := range ids {
			delete(s.byKey, key)
			delete(s.byID, id)
		}
		delete(s.byPath, path)
	}
	return nil
}

func (s *HNSWVectorStore) Search(ctx context.Context, query []float32, k int, filter func(*ChunkRecord) bool) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	// Over-fetch to compensate for lazily-deleted/filtered nodes still
	// resident in the graph.
	fetchK := k * 3
	if fetchK < k+10 {
		fetchK = k + 10
	}
	nodes := s.graph.Search(q, fetchK)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		rec, exists := s.byKey[node.Key]
		if !exists {
			continue
		}
		if filter != nil && !filter(rec) {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			Chunk:    rec,
			Distance: distance,
			Score:    1.0 / (1.0 + float32(math.Abs(float64(distance)))),
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func (s *HNSWVectorStore) GetFileChunks(ctx context.Context, path string) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	ids, ok := s.byPath[path]
	if !ok {
		return nil, nil
	}
	chunks := make([]*ChunkRecord, 0, len(ids))
	for _, key := range ids {
		if rec, exists := s.byKey[key]; exists {
			chunks = append(chunks, rec)
		}
	}
	sortChunksByIndex(chunks)
	return chunks, nil
}

func (s *HNSWVectorStore) GetFilesChunks(ctx context.Context, paths []string) (map[string][]*ChunkRecord, error) {
	result := make(map[string][]*ChunkRecord, len(paths))
	for _, p := range paths {
		chunks, err := s.GetFileChunks(ctx, p)
		if err != nil {
			return nil, err
		}
		result[p] = chunks
	}
	return result, nil
}

func sortChunksByIndex(chunks []*ChunkRecord) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].ChunkIndex > chunks[j].ChunkIndex; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}

func (s *HNSWVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.byKey)
}

func (s *HNSWVectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = s.graph.Distance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25
	s.graph = graph
	s.byKey = make(map[uint64]*ChunkRecord)
	s.byID = make(map[string]uint64)
	s.byPath = make(map[string]map[string]uint64)
	s.nextKey = 0
	return nil
}

// Close saves the index to disk (if the store was opened with a backing
// directory) and releases in-memory resources.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var saveErr error
	if s.dir != "" {
		saveErr = s.saveLocked()
	}
	s.graph = nil
	return saveErr
}

// saveLocked persists the graph and its metadata to s.dir using a
// create-temp-then-rename so a crash mid-write never leaves a corrupt file
// behind. Caller must hold s.mu.
func (s *HNSWVectorStore) saveLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create vector store dir: %w", err)
	}

	indexPath := filepath.Join(s.dir, hnswIndexFile)
	tmpIndexPath := indexPath + ".tmp"
	indexFile, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(indexFile); err != nil {
		indexFile.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := indexFile.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, indexPath); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadataLocked()
}

func (s *HNSWVectorStore) saveMetadataLocked() error {
	metaPath := filepath.Join(s.dir, hnswMetaFile)
	tmpPath := metaPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		ByKey:   s.byKey,
		ByID:    s.byID,
		ByPath:  s.byPath,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, metaPath)
}

// load reads a previously saved graph and metadata back into s. Caller must
// not have taken s.mu; load takes it itself.
func (s *HNSWVectorStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaPath := filepath.Join(s.dir, hnswMetaFile)
	metaFile, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := metaFile.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.byKey = meta.ByKey
	s.byID = meta.ByID
	s.byPath = meta.ByPath
	s.nextKey = meta.NextKey
	s.config = meta.Config
	if s.byKey == nil {
		s.byKey = make(map[uint64]*ChunkRecord)
	}
	if s.byID == nil {
		s.byID = make(map[string]uint64)
	}
	if s.byPath == nil {
		s.byPath = make(map[string]map[string]uint64)
	}

	indexPath := filepath.Join(s.dir, hnswIndexFile)
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer indexFile.Close()

	s.graph = newGraph(s.config)
	reader := bufio.NewReader(indexFile)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
