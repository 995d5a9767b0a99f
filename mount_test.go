//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewMountBuilderCreatesWorldWritableRoot(t *testing.T) {
	b, err := NewMountBuilder()
	if err != nil {
		t.Fatalf("NewMountBuilder() error = %v", err)
	}
	defer b.Close()

	info, err := os.Stat(b.Root())
	if err != nil {
		t.Fatalf("stat root: %v", err)
	}
	if info.Mode().Perm() != 0o777 {
		t.Errorf("root mode = %o, want 0777", info.Mode().Perm())
	}
}

func TestMountBuilderSandPath(t *testing.T) {
	b, err := NewMountBuilder()
	if err != nil {
		t.Fatalf("NewMountBuilder() error = %v", err)
	}
	defer b.Close()

	want := filepath.Join(b.Root(), "sand")
	if got := b.SandPath(); got != want {
		t.Errorf("SandPath() = %q, want %q", got, want)
	}
}

func TestMountBuilderCloseRemovesRoot(t *testing.T) {
	b, err := NewMountBuilder()
	if err != nil {
		t.Fatalf("NewMountBuilder() error = %v", err)
	}
	root := b.Root()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("root %q still exists after Close()", root)
	}
}

func TestMountBuilderCloseRemovesOverlayDirs(t *testing.T) {
	b, err := NewMountBuilder()
	if err != nil {
		t.Fatalf("NewMountBuilder() error = %v", err)
	}
	upper, err := os.MkdirTemp(os.TempDir(), "lib-judge-upper-")
	if err != nil {
		t.Fatalf("seed upperdir: %v", err)
	}
	b.overlayDirs = append(b.overlayDirs, upper)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(upper); !os.IsNotExist(err) {
		t.Errorf("overlay dir %q still exists after Close()", upper)
	}
}

// Build itself requires CAP_SYS_ADMIN to call mount(2) and is exercised
// by the inner.go/outer.go integration paths instead, which already run
// inside a fresh mount namespace by the time they call it.
//
// Close's real job, finding its way back to host paths after the caller
// has chrooted, can't be exercised here either without CAP_SYS_ADMIN:
// these tests only cover the unchrooted case, where Fchdir-then-remove
// and a plain RemoveAll behave identically.
