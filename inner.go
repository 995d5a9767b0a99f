//go:build linux

package sandbox

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// InnerConfig is everything the Inner Runner needs once it is already
// running as pid 1 of a fresh mount/pid(/net/user) namespace set.
type InnerConfig struct {
	Req              RunRequest
	WorkDir          string // W: the host directory bound/overlaid onto /sand
	CgroupRoot       string
	CgroupName       string
	JudgeUID         uint32
	JudgeGID         uint32
	ExecutorCorePath string
}

// RunInner drives one measured execution inside an already-prepared
// namespace set and returns the RunResult. The returned error is
// non-nil only for setup failures the caller (the Outer Runner) must
// surface as IE; once the measured command has actually started, every
// outcome is folded into the RunResult itself.
//
// Rather than building a shell command line through external
// cgexec/chroot/sh -c helpers, this performs the equivalent natively
// (Chroot, cgroup.procs join, Credential-based privilege drop), which
// keeps the sandbox's minimal bind-mounted /bin usable for the measured
// command itself instead of a dependency of the harness. The observable
// contract stays the same: chrooted, cgroup-limited, privilege dropped
// before exec.
func RunInner(cfg InnerConfig) (RunResult, error) {
	if err := raiseStackLimit(); err != nil {
		return RunResult{}, err
	}

	mb, err := NewMountBuilder()
	if err != nil {
		return RunResult{}, err
	}
	defer mb.Close()

	if _, err := mb.Build(cfg.WorkDir, cfg.Req.Overlay); err != nil {
		return RunResult{}, err
	}

	cg := NewCgroupController(cfg.CgroupRoot, cfg.CgroupName)
	if err := cg.Reset(); err != nil {
		return RunResult{}, err
	}
	if err := cg.AddProcess(os.Getpid()); err != nil {
		return RunResult{}, err
	}

	if err := unix.Chroot(mb.Root()); err != nil {
		return RunResult{}, &Error{Code: ErrMountSetup, Message: "chroot: " + err.Error(), cause: err}
	}
	if err := unix.Chdir("/sand"); err != nil {
		return RunResult{}, &Error{Code: ErrMountSetup, Message: "chdir /sand: " + err.Error(), cause: err}
	}

	timeFile := "/tmp/time.txt"
	result, runErr := spawnMeasured(cfg, timeFile)

	killAllExceptSelf()
	reapChildren()

	if runErr != nil {
		return RunResult{}, runErr
	}
	return result, nil
}

// raiseStackLimit sets RLIMIT_STACK to its hard maximum: competitive
// programs routinely rely on recursion beyond the 8 MiB default.
func raiseStackLimit() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_STACK, &rlim); err != nil {
		return wrapSyscallError("getrlimit stack", err)
	}
	rlim.Cur = rlim.Max
	if err := unix.Setrlimit(unix.RLIMIT_STACK, &rlim); err != nil {
		return wrapSyscallError("setrlimit stack", err)
	}
	return nil
}

// spawnMeasured execs executor-core against the requested command under
// the time limit and builds the RunResult.
func spawnMeasured(cfg InnerConfig, timeFile string) (RunResult, error) {
	argv := append([]string{timeFile}, shellSplit(cfg.Req.ExecCommand)...)
	cmd := exec.Command(cfg.ExecutorCorePath, argv...)
	cmd.Env = []string{"HOME=/home/judge-user", "PATH=/usr/bin:/bin"}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: cfg.JudgeUID, Gid: cfg.JudgeGID},
		Setpgid:    true,
	}

	if err := wireStdio(cmd, cfg.Req); err != nil {
		return RunResult{}, err
	}

	if err := cmd.Start(); err != nil {
		return RunResult{}, wrapSyscallError("start measured command", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(cfg.Req.TimeLimit):
		_ = cmd.Process.Kill()
		<-done
		return RunResult{Status: StatusTLE, ReturnCode: 124, CPUTime: cfg.Req.TimeLimit, PeakMemory: -1}, nil
	case waitErr := <-done:
		return buildResult(cfg, timeFile, waitErr)
	}
}

func buildResult(cfg InnerConfig, timeFile string, waitErr error) (RunResult, error) {
	returnCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			returnCode = exitErr.ExitCode()
		} else {
			returnCode = -1
		}
	}

	cpuTime, err := readCPUTime(timeFile)
	if err != nil {
		cpuTime = -1
	}

	cg := NewCgroupController(cfg.CgroupRoot, cfg.CgroupName)
	peak, err := cg.PeakMemory()
	if err != nil {
		peak = -1
	}

	status := StatusOK
	if returnCode != 0 {
		status = StatusRE
	}
	return RunResult{Status: status, ReturnCode: returnCode, CPUTime: cpuTime, PeakMemory: peak}, nil
}

func readCPUTime(path string) (time.Duration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func wireStdio(cmd *exec.Cmd, req RunRequest) error {
	if req.Stdin != "" {
		f, err := os.Open(req.Stdin)
		if err != nil {
			return &Error{Code: ErrInvalidRequest, Message: "open stdin: " + err.Error(), cause: err}
		}
		cmd.Stdin = f
	}
	if req.Stdout != "" {
		f, err := os.Create(req.Stdout)
		if err != nil {
			return &Error{Code: ErrInvalidRequest, Message: "open stdout: " + err.Error(), cause: err}
		}
		cmd.Stdout = f
	}
	if req.Stderr != "" {
		f, err := os.Create(req.Stderr)
		if err != nil {
			return &Error{Code: ErrInvalidRequest, Message: "open stderr: " + err.Error(), cause: err}
		}
		cmd.Stderr = f
	}
	return nil
}

// killAllExceptSelf sweeps stragglers before returning a result, so a
// fork bomb in the measured program can't wedge subsequent runs.
// Sending SIGKILL to pid -1 targets every process in the caller's pid
// namespace except the caller itself: the same reach a plain
// "pkill --uid judge-user" needs, without a shared process table to
// scan from outside the namespace.
func killAllExceptSelf() {
	_ = syscall.Kill(-1, syscall.SIGKILL)
}

// reapChildren drains the zombie queue after the kill sweep.
func reapChildren() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}

// shellSplit performs a minimal word split on exec_command. Language
// compile/exec templates don't use quoting or globbing beyond plain
// whitespace-separated arguments, so a full shell grammar isn't needed
// here: the one case that would need a shell, changing into the sandbox
// working directory, is handled by chdir("/sand") before exec instead.
func shellSplit(command string) []string {
	return strings.Fields(command)
}
