//go:build linux

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeWorkerScript writes a shell script that speaks the worker line
// protocol well enough to exercise Worker/Supervisor without a real
// judged binary: it answers every verb with "OK" and, for "comm",
// copies a canned resp.json into place first.
func fakeWorkerScript(t *testing.T, workDir, resp string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeworker.sh")
	script := "#!/bin/sh\n" +
		"while read -r verb; do\n" +
		"  if [ \"$verb\" = \"comm\" ]; then\n" +
		"    printf '%s' '" + resp + "' > '" + filepath.Join(workDir, "resp.json") + "'\n" +
		"  fi\n" +
		"  if [ \"$verb\" = \"last\" ]; then\n" +
		"    echo OK\n" +
		"    exit 0\n" +
		"  fi\n" +
		"  echo OK\n" +
		"done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake worker script: %v", err)
	}
	return path
}

func TestWorkerCleanAndComm(t *testing.T) {
	workDir := t.TempDir()
	resp := `{"status":"OK","returncode":0,"time":0.5,"memory":4096}`
	bin := fakeWorkerScript(t, workDir, resp)

	w := NewWorker(WorkerConfig{BinaryPath: bin, WorkDir: workDir}, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Kill()

	if err := w.Clean(); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	result, err := w.Comm(NewRunRequest("true", WithTimeLimit(time.Second)))
	if err != nil {
		t.Fatalf("Comm() error = %v", err)
	}
	if result.Status != StatusOK {
		t.Errorf("Status = %q, want OK", result.Status)
	}
	if result.PeakMemory != 4096 {
		t.Errorf("PeakMemory = %d, want 4096", result.PeakMemory)
	}
	if result.CPUTime != 500*time.Millisecond {
		t.Errorf("CPUTime = %v, want 500ms", result.CPUTime)
	}

	if err := w.Last(); err != nil {
		t.Fatalf("Last() error = %v", err)
	}
}

func TestWorkerRoundTripDesyncOnGarbageReply(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "badworker.sh")
	script := "#!/bin/sh\nwhile read -r verb; do echo GARBAGE; done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	w := NewWorker(WorkerConfig{BinaryPath: path, WorkDir: workDir}, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Kill()

	err := w.Clean()
	if err == nil {
		t.Fatal("Clean() expected a desync error, got nil")
	}
	var sandboxErr *Error
	if !errors.As(err, &sandboxErr) || sandboxErr.Code != ErrProtocolDesync {
		t.Errorf("Clean() error = %v, want ErrProtocolDesync", err)
	}
}

func TestSupervisorRunRespawnsOnDesync(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "badworker.sh")
	script := "#!/bin/sh\nwhile read -r verb; do echo GARBAGE; done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	s := NewSupervisor(WorkerConfig{BinaryPath: path, WorkDir: workDir}, zap.NewNop())
	err := s.Run(context.Background(), func(w *Worker) error {
		return w.Clean()
	})
	if err == nil {
		t.Fatal("Run() expected an error from the desynced worker")
	}
	if s.worker.IsRunning() {
		t.Error("Run() should have killed the desynced worker")
	}
}
