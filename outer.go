//go:build linux

package sandbox

import (
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// innerHandoff is the wire shape used to pass an InnerConfig from the
// Outer Runner to the freshly re-exec'd Inner Runner over a pipe.
// RunRequest.TimeLimit and .Overlay are both tagged json:"-" (kept out
// of the comm.json wire format the worker protocol uses), so embedding
// Req here would silently drop them too; both are carried alongside it
// instead.
type innerHandoff struct {
	Req              RunRequest `json:"req"`
	TimeLimitNanos   int64      `json:"time_limit_nanos"`
	Overlay          bool       `json:"overlay"`
	WorkDir          string     `json:"work_dir"`
	CgroupRoot       string     `json:"cgroup_root"`
	CgroupName       string     `json:"cgroup_name"`
	JudgeUID         uint32     `json:"judge_uid"`
	JudgeGID         uint32     `json:"judge_gid"`
	ExecutorCorePath string     `json:"executor_core_path"`
}

// OuterConfig is what the Supervisor hands to the Outer Runner for one
// RunRequest.
type OuterConfig struct {
	Inner            InnerConfig
	SelfPath         string // re-exec target; normally os.Executable()
	UseUserNamespace bool
	TimeoutMargin    time.Duration // grace period added on top of the inner time limit
}

// InnerDispatchArg is the argv[1] sentinel that tells a re-exec'd copy
// of the judged binary to run as the Inner Runner instead of the normal
// worker loop, the same dispatch idiom ccrun uses for its own hidden
// child subcommand.
const InnerDispatchArg = "__inner__"

// RunOuter spawns a fresh Inner Runner in new mount/pid/net(/user)
// namespaces, enforces the outer wall-clock timeout, and returns its
// result. A timed-out inner is reported the way the standalone executor
// CLI reports any timeout: status=TLE, returncode=124.
func RunOuter(cfg OuterConfig) (RunResult, error) {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return RunResult{}, &Error{Code: ErrNamespaceSetup, Message: "create handoff pipe: " + err.Error(), cause: err}
	}
	resultR, resultW, err := os.Pipe()
	if err != nil {
		return RunResult{}, &Error{Code: ErrNamespaceSetup, Message: "create result pipe: " + err.Error(), cause: err}
	}

	cmd := exec.Command(cfg.SelfPath, InnerDispatchArg)
	cmd.ExtraFiles = []*os.File{reqR, resultW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = buildSysProcAttr(cfg.UseUserNamespace)

	handoff := innerHandoff{
		Req:              cfg.Inner.Req,
		TimeLimitNanos:   int64(cfg.Inner.Req.TimeLimit),
		Overlay:          cfg.Inner.Req.Overlay,
		WorkDir:          cfg.Inner.WorkDir,
		CgroupRoot:       cfg.Inner.CgroupRoot,
		CgroupName:       cfg.Inner.CgroupName,
		JudgeUID:         cfg.Inner.JudgeUID,
		JudgeGID:         cfg.Inner.JudgeGID,
		ExecutorCorePath: cfg.Inner.ExecutorCorePath,
	}
	encoded, err := json.Marshal(handoff)
	if err != nil {
		reqR.Close()
		reqW.Close()
		resultR.Close()
		resultW.Close()
		return RunResult{}, &Error{Code: ErrUnknown, Message: "marshal handoff: " + err.Error(), cause: err}
	}

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		resultR.Close()
		resultW.Close()
		return RunResult{}, &Error{Code: ErrNamespaceSetup, Message: "spawn inner runner: " + err.Error(), cause: err}
	}

	// Parent no longer needs the child's ends of either pipe.
	reqR.Close()
	resultW.Close()

	if _, err := reqW.Write(encoded); err != nil {
		reqW.Close()
		return RunResult{}, &Error{Code: ErrNamespaceSetup, Message: "write handoff: " + err.Error(), cause: err}
	}
	reqW.Close()

	type waitOutcome struct {
		result RunResult
		err    error
	}
	outcome := make(chan waitOutcome, 1)
	go func() {
		raw, readErr := io.ReadAll(resultR)
		waitErr := cmd.Wait()
		if readErr != nil {
			outcome <- waitOutcome{err: &Error{Code: ErrProtocolDesync, Message: "read inner result: " + readErr.Error(), cause: readErr}}
			return
		}
		if waitErr != nil {
			if _, isExit := waitErr.(*exec.ExitError); !isExit {
				outcome <- waitOutcome{err: &Error{Code: ErrProtocolDesync, Message: "wait inner runner: " + waitErr.Error(), cause: waitErr}}
				return
			}
		}
		var result RunResult
		if err := json.Unmarshal(raw, &result); err != nil {
			outcome <- waitOutcome{err: &Error{Code: ErrProtocolDesync, Message: "unmarshal inner result: " + err.Error(), cause: err}}
			return
		}
		outcome <- waitOutcome{result: result}
	}()

	select {
	case o := <-outcome:
		return o.result, o.err
	case <-time.After(cfg.Inner.Req.TimeLimit + cfg.TimeoutMargin):
		killProcessGroup(cmd)
		<-outcome // drain so the goroutine doesn't leak
		return RunResult{Status: StatusTLE, ReturnCode: 124, CPUTime: cfg.Inner.Req.TimeLimit, PeakMemory: -1}, nil
	}
}

// RunInnerDispatch is the Inner Runner side of RunOuter's re-exec: it
// reads the handoff off fd 3, runs the measured command, and writes the
// RunResult to fd 4. Called from the judged binary's entrypoint when
// os.Args[1] == InnerDispatchArg, after the re-exec is already running
// pid 1 of the fresh namespace set RunOuter's SysProcAttr requested.
func RunInnerDispatch() error {
	reqFile := os.NewFile(3, "handoff-in")
	resultFile := os.NewFile(4, "handoff-out")
	if reqFile == nil || resultFile == nil {
		return &Error{Code: ErrNamespaceSetup, Message: "inner dispatch: missing handoff file descriptors"}
	}
	defer resultFile.Close()

	raw, err := io.ReadAll(reqFile)
	if err != nil {
		return &Error{Code: ErrNamespaceSetup, Message: "read handoff: " + err.Error(), cause: err}
	}
	reqFile.Close()

	var handoff innerHandoff
	if err := json.Unmarshal(raw, &handoff); err != nil {
		return &Error{Code: ErrNamespaceSetup, Message: "unmarshal handoff: " + err.Error(), cause: err}
	}

	inner := handoff.Req
	inner.TimeLimit = time.Duration(handoff.TimeLimitNanos)
	inner.Overlay = handoff.Overlay
	cfg := InnerConfig{
		Req:              inner,
		WorkDir:          handoff.WorkDir,
		CgroupRoot:       handoff.CgroupRoot,
		CgroupName:       handoff.CgroupName,
		JudgeUID:         handoff.JudgeUID,
		JudgeGID:         handoff.JudgeGID,
		ExecutorCorePath: handoff.ExecutorCorePath,
	}

	result, runErr := RunInner(cfg)
	if runErr != nil {
		return runErr
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return &Error{Code: ErrUnknown, Message: "marshal inner result: " + err.Error(), cause: err}
	}
	_, err = resultFile.Write(encoded)
	return err
}

// buildSysProcAttr requests the namespace set the Outer Runner always
// isolates a run with: fresh mount, pid, and net namespaces always; a
// fresh user namespace as well when the caller isn't already running as
// a uid that can mount/chroot without one.
func buildSysProcAttr(useUserNamespace bool) *syscall.SysProcAttr {
	ns := defaultNamespaceSet(useUserNamespace)
	attr := &syscall.SysProcAttr{
		Cloneflags: namespaceCloneFlags(ns),
		Setpgid:    true,
		Pdeathsig:  syscall.SIGKILL,
	}
	if useUserNamespace {
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
		attr.GidMappingsEnableSetgroups = false
	}
	return attr
}

// killProcessGroup kills the whole process group rooted at the Outer
// Runner's direct child, a belt-and-braces sweep for a stuck inner that
// ignored its own timeout.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
