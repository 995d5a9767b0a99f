//go:build linux

package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// WorkerConfig is what the Supervisor needs to spawn and talk to one
// long-lived worker process.
type WorkerConfig struct {
	BinaryPath string // the judged binary, run in its default (worker) mode
	WorkDir    string // holds comm.json / resp.json
	Env        []string
}

// Worker is the host-side handle to one long-lived worker subprocess: it
// owns the request/response protocol plumbing over the worker's
// stdin/stdout, the way a runtime handle owns a wire protocol to the
// process it controls.
type Worker struct {
	cfg    WorkerConfig
	logger *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewWorker constructs a Worker handle. Start must be called before any
// protocol method.
func NewWorker(cfg WorkerConfig, logger *zap.Logger) *Worker {
	return &Worker{cfg: cfg, logger: logger}
}

// Start spawns the worker subprocess and wires its stdin/stdout.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.cfg.WorkDir, 0o755); err != nil {
		return &Error{Code: ErrWorkerNotRunning, Message: "create work dir: " + err.Error(), cause: err}
	}

	cmd := exec.Command(w.cfg.BinaryPath)
	cmd.Env = w.cfg.Env
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &Error{Code: ErrWorkerNotRunning, Message: "stdin pipe: " + err.Error(), cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Code: ErrWorkerNotRunning, Message: "stdout pipe: " + err.Error(), cause: err}
	}
	if err := cmd.Start(); err != nil {
		return &Error{Code: ErrWorkerNotRunning, Message: "start worker: " + err.Error(), cause: err}
	}

	w.cmd = cmd
	w.stdin = stdin
	w.stdout = bufio.NewReader(stdout)
	w.logger.Info("worker started", zap.Int("pid", cmd.Process.Pid))
	return nil
}

// IsRunning reports whether the worker subprocess is still alive.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cmd != nil && w.cmd.ProcessState == nil
}

// Clean sends the "clean" verb: remove judge-owned entries under /sand,
// leaving host-owned entries intact.
func (w *Worker) Clean() error {
	return w.roundTrip("clean")
}

// Last sends "last" and waits for the worker to exit cleanly.
func (w *Worker) Last() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd == nil {
		return ErrNotRunning
	}
	if _, err := fmt.Fprintln(w.stdin, "last"); err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "write last: " + err.Error(), cause: err}
	}
	return w.cmd.Wait()
}

// Kill forcibly terminates the worker. Used when the protocol
// desynchronizes: the worker is killed and respawned.
func (w *Worker) Kill() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}
	return w.cmd.Process.Kill()
}

// Comm sends one RunRequest to the worker and returns its RunResult.
func (w *Worker) Comm(req RunRequest) (RunResult, error) {
	commPath := filepath.Join(w.cfg.WorkDir, "comm.json")
	respPath := filepath.Join(w.cfg.WorkDir, "resp.json")

	wire := commWire{
		Exec:      req.ExecCommand,
		TimeLimit: req.TimeLimit.Seconds(),
		Stdin:     req.Stdin,
		Stdout:    req.Stdout,
		Stderr:    req.Stderr,
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return RunResult{}, &Error{Code: ErrUnknown, Message: "marshal comm.json: " + err.Error(), cause: err}
	}
	if err := os.WriteFile(commPath, encoded, 0o644); err != nil {
		return RunResult{}, &Error{Code: ErrProtocolDesync, Message: "write comm.json: " + err.Error(), cause: err}
	}

	if err := w.roundTrip("comm"); err != nil {
		return RunResult{}, err
	}

	raw, err := os.ReadFile(respPath)
	if err != nil {
		return RunResult{}, &Error{Code: ErrProtocolDesync, Message: "read resp.json: " + err.Error(), cause: err}
	}
	var resp respWire
	if err := json.Unmarshal(raw, &resp); err != nil {
		return RunResult{}, &Error{Code: ErrProtocolDesync, Message: "unmarshal resp.json: " + err.Error(), cause: err}
	}
	return RunResult{
		Status:     Status(resp.Status),
		ReturnCode: resp.ReturnCode,
		CPUTime:    secondsToDuration(resp.Time),
		PeakMemory: resp.Memory,
	}, nil
}

// roundTrip writes a verb line and expects exactly "OK" back. Any other
// reply, or a closed pipe, is a protocol desync.
func (w *Worker) roundTrip(verb string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd == nil {
		return ErrNotRunning
	}
	if _, err := fmt.Fprintln(w.stdin, verb); err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "write " + verb + ": " + err.Error(), cause: err}
	}
	line, err := w.stdout.ReadString('\n')
	if err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "read reply to " + verb + ": " + err.Error(), cause: err}
	}
	if trimNewline(line) != "OK" {
		return &Error{Code: ErrProtocolDesync, Message: "unexpected reply to " + verb + ": " + line}
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func secondsToDuration(s float64) time.Duration {
	if s < 0 {
		return -1
	}
	return time.Duration(s * float64(time.Second))
}

// Supervisor owns one Worker and serializes access to it: one worker per
// host process, enforced with a weight-1 semaphore rather than left to
// incidental call discipline. A second concurrent judgement against the
// same Supervisor blocks instead of racing the shared "lib-judge" cgroup.
type Supervisor struct {
	worker  *Worker
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *Metrics
}

// NewSupervisor constructs a Supervisor around a fresh Worker.
func NewSupervisor(cfg WorkerConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		worker: NewWorker(cfg, logger),
		sem:    semaphore.NewWeighted(1),
		logger: logger,
	}
}

// WithMetrics attaches a Metrics recorder so worker respawns are
// observable, and returns the Supervisor for chaining.
func (s *Supervisor) WithMetrics(m *Metrics) *Supervisor {
	s.metrics = m
	return s
}

// Ensure starts the worker if it is not already running.
func (s *Supervisor) Ensure() error {
	if s.worker.IsRunning() {
		return nil
	}
	return s.worker.Start()
}

// Run executes fn against the Supervisor's worker under the
// one-at-a-time concurrency policy. On protocol desync, the worker is
// killed and replaced with a fresh, not yet started handle before the
// error is returned; the next Run call starts it through Ensure.
func (s *Supervisor) Run(ctx context.Context, fn func(*Worker) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if err := s.Ensure(); err != nil {
		return err
	}

	err := fn(s.worker)
	if isDesync(err) {
		s.logger.Warn("worker protocol desync, respawning", zap.Error(err))
		_ = s.worker.Kill()
		s.worker = NewWorker(s.worker.cfg, s.logger)
		if s.metrics != nil {
			s.metrics.ObserveWorkerRestart()
		}
	}
	return err
}

func isDesync(err error) bool {
	var e *Error
	return err != nil && errors.As(err, &e) && e.Code == ErrProtocolDesync
}

// commWire mirrors the worker's JSON request file.
type commWire struct {
	Exec      string  `json:"exec"`
	TimeLimit float64 `json:"timelimit"`
	Stdin     string  `json:"stdin,omitempty"`
	Stdout    string  `json:"stdout,omitempty"`
	Stderr    string  `json:"stderr,omitempty"`
}

// respWire mirrors the worker's JSON response file.
type respWire struct {
	Status     string  `json:"status"`
	ReturnCode int     `json:"returncode"`
	Time       float64 `json:"time"`
	Memory     int64   `json:"memory"`
}
