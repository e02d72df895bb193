// Package lock implements the process-wide mutual exclusion used to keep a
// single scan/index writer active per project. Unlike an OS advisory lock,
// the lock file carries enough content (pid, timestamp, operation) for a
// competing process to judge staleness on its own, which matters because the
// project directory may live on a filesystem where flock semantics are
// unreliable (network shares, some container overlays).
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// AcquireTimeout bounds how long Acquire polls before giving up.
	AcquireTimeout = 30 * time.Second
	// PollInterval is the spacing between acquisition attempts.
	PollInterval = 100 * time.Millisecond
	// StaleAfter is the age past which a lock file is considered abandoned
	// regardless of whether its owning pid is still alive.
	StaleAfter = 5 * time.Minute
)

// Payload is the JSON content written into a lock file.
type Payload struct {
	PID         int    `json:"pid"`
	Timestamp   int64  `json:"timestamp"`
	Operation   string `json:"operation"`
	OperationID string `json:"operation_id"`
}

// Lock guards a single lock file on disk. The zero value is not usable; use
// New.
type Lock struct {
	path        string
	held        bool
	operationID string

	// timeoutOverride, when nonzero, replaces AcquireTimeout. Exposed only
	// for tests that need to exercise the contention path without waiting
	// out the full 30s default.
	timeoutOverride time.Duration
}

// New returns a Lock for the given lock file path. The parent directory is
// created lazily on Acquire.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire blocks, polling every PollInterval, until the lock is obtained or
// AcquireTimeout elapses. operation is recorded in the lock payload purely
// for diagnostics (e.g. "scan", "reindex").
func (l *Lock) Acquire(operation string) error {
	timeout := AcquireTimeout
	if l.timeoutOverride > 0 {
		timeout = l.timeoutOverride
	}
	return l.acquireWithTimeout(operation, timeout)
}

func (l *Lock) acquireWithTimeout(operation string, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("lock: create lock dir: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.tryAcquire(operation)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: timed out waiting for %s after %s", l.path, timeout)
		}
		time.Sleep(PollInterval)
	}
}

// tryAcquire makes a single attempt. It clears a stale lock (if any) before
// trying the exclusive create, then re-reads the file it wrote to verify no
// other process won a race in between.
func (l *Lock) tryAcquire(operation string) (bool, error) {
	if existing, err := readPayload(l.path); err == nil {
		if !isLive(existing) {
			os.Remove(l.path)
		}
	}

	operationID := uuid.NewString()
	payload := Payload{PID: os.Getpid(), Timestamp: time.Now().Unix(), Operation: operation, OperationID: operationID}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("lock: marshal payload: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock: create %s: %w", l.path, err)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(l.path)
		return false, fmt.Errorf("lock: write %s: %w", l.path, writeErr)
	}
	if closeErr != nil {
		os.Remove(l.path)
		return false, fmt.Errorf("lock: close %s: %w", l.path, closeErr)
	}

	verify, err := readPayload(l.path)
	if err != nil {
		return false, fmt.Errorf("lock: verify %s: %w", l.path, err)
	}
	if verify.PID != os.Getpid() {
		// Another process stomped the file between our write and this
		// read; we lost the race.
		return false, nil
	}

	l.held = true
	l.operationID = operationID
	return true, nil
}

// OperationID returns the correlation ID generated for the currently held
// lock, for threading into the holder's own log lines. Empty if no lock is
// held.
func (l *Lock) OperationID() string {
	if !l.held {
		return ""
	}
	return l.operationID
}

// Release removes the lock file only if it is still owned by this process.
// Releasing an unheld or already-stolen lock is a no-op, not an error.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	defer func() { l.held = false }()

	payload, err := readPayload(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("lock: read %s: %w", l.path, err)
	}
	if payload.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

func readPayload(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("lock: decode %s: %w", path, err)
	}
	return p, nil
}

// isLive reports whether a lock payload still refers to a live, non-stale
// holder. A lock older than StaleAfter is considered dead even if its pid
// happens to be alive (reused pid, or a holder that hung without releasing).
func isLive(p Payload) bool {
	age := time.Since(time.Unix(p.Timestamp, 0))
	if age > StaleAfter {
		return false
	}
	return pidAlive(p.PID)
}

// pidAlive probes liveness with signal 0, which the kernel delivers to no
// one but still validates the pid exists and is visible to this process.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
