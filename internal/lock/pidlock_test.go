package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "courier.lock")
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file pid = %q, want %d", got, os.Getpid())
	}
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	t.Parallel()

	lockPath := PathFor(filepath.Join(t.TempDir(), "data", "courier.db"))
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process still conflicts.
	if _, err := AcquirePIDLock(lockPath); err == nil {
		t.Fatal("expected second acquisition to fail")
	} else if !strings.Contains(err.Error(), "held by pid") {
		t.Errorf("error should name the holder: %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestPathFor(t *testing.T) {
	if got := PathFor("/var/lib/courier/courier.db"); got != "/var/lib/courier/courier.lock" {
		t.Errorf("PathFor = %q", got)
	}
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
