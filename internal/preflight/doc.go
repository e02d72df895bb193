// Package preflight provides system validation checks to run before
// indexing or serving a project.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB)
//   - Write permissions in project directory
//   - File descriptor limits (minimum 1024)
//   - Embedding service reachability
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/project", embedder)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
