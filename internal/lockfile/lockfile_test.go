package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	want := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != want {
		t.Errorf("Lock file content = %q, want %q", string(content), want)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Errorf("Expected LockError, got: %T", err)
	}
	if !strings.Contains(err.Error(), "another 3DFANS bot instance") {
		t.Errorf("Error message should mention the running instance: %s", err)
	}
	if !strings.Contains(err.Error(), tempDir) {
		t.Errorf("Error message should contain the lock path: %s", err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}

	lockPath := filepath.Join(tempDir, LockFileName)
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}

	// Double release must be safe.
	if err := lock.Release(); err != nil {
		t.Errorf("Second release should be a no-op: %v", err)
	}

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestExtractPID(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{"valid pid", "pid=12345\n", 12345},
		{"pid with extra content", "pid=67890\nother=info", 67890},
		{"no pid", "other=info", 0},
		{"empty content", "", 0},
		{"invalid pid", "pid=abc", 0},
		{"no equals", "pid12345", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPID(tt.content); got != tt.expected {
				t.Errorf("extractPID(%q) = %d, want %d", tt.content, got, tt.expected)
			}
		})
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestAcquireCreatesMissingDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "state", "nested")

	lock, err := AcquireLock(nested)
	if err != nil {
		t.Fatalf("Should create the directory and acquire the lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("Directory should have been created: %s", nested)
	}
}
