package errors_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/contextweaver/contextweaver/internal/chunk"
	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/preflight"
	"github.com/contextweaver/contextweaver/internal/scanner"
	"github.com/contextweaver/contextweaver/internal/store"
)

// TestErrorWrapping_Preflight verifies preflight errors are wrapped with context.
func TestErrorWrapping_Preflight(t *testing.T) {
	err := preflight.MarkPassed("/nonexistent/deeply/nested/path/that/cannot/exist")
	if err == nil {
		t.Skip("Expected error creating marker in nonexistent path")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "create") && !strings.Contains(errMsg, "marker") && !strings.Contains(errMsg, "directory") {
		t.Errorf("Error should contain context about creating marker directory, got: %s", errMsg)
	}
}

// TestErrorWrapping_Scanner verifies scanner errors are wrapped with context
// identifying the failing stage.
func TestErrorWrapping_Scanner(t *testing.T) {
	tmpDir := t.TempDir()
	rows, err := store.NewSQLiteRowStore(filepath.Join(tmpDir, "rows.db"))
	if err != nil {
		t.Fatalf("failed to open row store: %v", err)
	}
	rows.Close()

	splitter := chunk.NewSemanticSplitter(chunk.DefaultRegistry(), chunk.DefaultSplitterConfig())
	s := scanner.NewScanner(rows, splitter)

	_, _, err = s.Scan(context.Background(), tmpDir, scanner.Options{})
	if err == nil {
		t.Fatal("expected an error scanning with a closed row store")
	}

	if !strings.Contains(err.Error(), "scanner:") {
		t.Errorf("Error should be prefixed with the failing component, got: %s", err.Error())
	}
}

// TestErrorWrapping_Config verifies config load errors are wrapped with the
// path of the offending file.
func TestErrorWrapping_Config(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := config.Load(tmpDir + "/missing-parent/does-not-exist")
	if err != nil && !strings.Contains(err.Error(), "config") {
		t.Errorf("Error should mention config, got: %s", err.Error())
	}
}
