package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rs, err := store.NewSQLiteRowStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	vs := store.NewHNSWVectorStore(store.DefaultVectorStoreConfig(3))
	t.Cleanup(func() { _ = vs.Close() })

	engine := &search.Engine{Rows: rs, Vectors: vs}
	s, err := NewServer(engine, nil, nil, nil)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestHandleSearch_EmptyQueryRejected(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: ""})
	require.Error(t, err)
}

func TestHandleIndex_RequiresScannerAndIndexer(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleIndex(context.Background(), nil, IndexInput{RootPath: "/tmp"})
	require.Error(t, err)
}

func TestHandleSearch_ReturnsEmptyResultsOnEmptyIndex(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "anything"})
	require.NoError(t, err)
	require.Empty(t, out.Files)
}
