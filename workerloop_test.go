//go:build linux

package sandbox

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWorkerLoopCleanThenLast(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leftover.out"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed leftover file: %v", err)
	}

	cfg := WorkerLoopConfig{WorkDir: dir, JudgeUID: uint32(os.Getuid())}
	in := strings.NewReader("clean\nlast\n")
	var out bytes.Buffer

	if err := RunWorkerLoop(cfg, in, &out); err != nil {
		t.Fatalf("RunWorkerLoop() error = %v", err)
	}
	if out.String() != "OK\nOK\n" {
		t.Errorf("replies = %q, want two OK lines", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "leftover.out")); !os.IsNotExist(err) {
		t.Errorf("expected clean to remove leftover.out, stat err = %v", err)
	}
}

func TestRunWorkerLoopUnknownVerbIsDesync(t *testing.T) {
	cfg := WorkerLoopConfig{WorkDir: t.TempDir(), JudgeUID: uint32(os.Getuid())}
	in := strings.NewReader("garbage\n")
	var out bytes.Buffer

	err := RunWorkerLoop(cfg, in, &out)
	if !isDesync(err) {
		t.Fatalf("RunWorkerLoop() error = %v, want a protocol desync", err)
	}
}
