//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCgroupControllerResetAndLimits(t *testing.T) {
	root := t.TempDir()
	c := NewCgroupController(root, "lib-judge-test")

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	pidsMax, err := os.ReadFile(filepath.Join(root, "pids", "lib-judge-test", "pids.max"))
	if err != nil {
		t.Fatalf("read pids.max: %v", err)
	}
	if string(pidsMax) != "1000" {
		t.Errorf("pids.max = %q, want 1000", pidsMax)
	}

	memLimit, err := os.ReadFile(filepath.Join(root, "memory", "lib-judge-test", "memory.limit_in_bytes"))
	if err != nil {
		t.Fatalf("read memory.limit_in_bytes: %v", err)
	}
	if string(memLimit) != "1073741824" {
		t.Errorf("memory.limit_in_bytes = %q, want 1073741824", memLimit)
	}
}

func TestCgroupControllerResetIsIdempotent(t *testing.T) {
	root := t.TempDir()
	c := NewCgroupController(root, "lib-judge-test")

	if err := c.Reset(); err != nil {
		t.Fatalf("first Reset() error = %v", err)
	}
	// On cgroupfs, rmdir removes a cgroup's control files together with
	// its directory. A plain temp dir keeps the files Reset wrote and
	// would refuse the rmdir, so clear them the way the kernel would.
	for _, ctrl := range cgroupControllers {
		dir := filepath.Join(root, ctrl, "lib-judge-test")
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		for _, e := range entries {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				t.Fatalf("clear %s: %v", e.Name(), err)
			}
		}
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("second Reset() error = %v", err)
	}
}

func TestCgroupControllerPeakMemory(t *testing.T) {
	root := t.TempDir()
	c := NewCgroupController(root, "lib-judge-test")
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	usagePath := filepath.Join(root, "memory", "lib-judge-test", "memory.max_usage_in_bytes")
	if err := os.WriteFile(usagePath, []byte("4096\n"), 0o644); err != nil {
		t.Fatalf("seed usage file: %v", err)
	}

	got, err := c.PeakMemory()
	if err != nil {
		t.Fatalf("PeakMemory() error = %v", err)
	}
	if got != 4096 {
		t.Errorf("PeakMemory() = %d, want 4096", got)
	}
}
