//go:build linux

package sandbox

import (
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// RunRequestOption is a functional option for building a RunRequest.
type RunRequestOption func(*RunRequest)

// NewRunRequest builds a RunRequest from a command line and options.
// Defaults: no stdin/stdout/stderr redirection, overlay disabled, and a
// zero time limit (callers must supply WithTimeLimit).
func NewRunRequest(execCommand string, opts ...RunRequestOption) RunRequest {
	req := RunRequest{ExecCommand: execCommand}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// WithStdin redirects the measured command's stdin from path.
func WithStdin(path string) RunRequestOption {
	return func(r *RunRequest) { r.Stdin = path }
}

// WithStdout redirects the measured command's stdout to path.
func WithStdout(path string) RunRequestOption {
	return func(r *RunRequest) { r.Stdout = path }
}

// WithStderr redirects the measured command's stderr to path.
func WithStderr(path string) RunRequestOption {
	return func(r *RunRequest) { r.Stderr = path }
}

// WithTimeLimit sets the wall-clock limit enforced by the Inner Runner.
func WithTimeLimit(d time.Duration) RunRequestOption {
	return func(r *RunRequest) { r.TimeLimit = d }
}

// WithOverlay selects overlay mode: writes to /sand are confined to an
// upper layer discarded at namespace teardown.
func WithOverlay(enabled bool) RunRequestOption {
	return func(r *RunRequest) { r.Overlay = enabled }
}

// WithSendFiles stages the given relative paths into /sand before the run.
func WithSendFiles(paths ...string) RunRequestOption {
	return func(r *RunRequest) { r.SendFiles = append(r.SendFiles, paths...) }
}

// WithGetFiles extracts the given relative paths from /sand after the run.
func WithGetFiles(paths ...string) RunRequestOption {
	return func(r *RunRequest) { r.GetFiles = append(r.GetFiles, paths...) }
}

// NamespaceSet models the Linux namespaces an Outer Runner invocation
// requests, reusing the OCI runtime-spec namespace vocabulary even
// though nothing here talks to an OCI runtime: it is a convenient,
// already-typed way to describe "fresh namespace of this type" vs.
// "attach to an existing namespace at this path".
type NamespaceSet struct {
	Namespaces []specs.LinuxNamespace
}

// SetOrReplaceLinuxNamespace sets or replaces a namespace entry.
// path == "" means "create a fresh namespace of that type".
func SetOrReplaceLinuxNamespace(ns *NamespaceSet, typ specs.LinuxNamespaceType, path string) {
	for i := range ns.Namespaces {
		if ns.Namespaces[i].Type == typ {
			ns.Namespaces[i].Path = path
			return
		}
	}
	ns.Namespaces = append(ns.Namespaces, specs.LinuxNamespace{Type: typ, Path: path})
}

// RemoveLinuxNamespace drops a namespace type from the set, if present.
func RemoveLinuxNamespace(ns *NamespaceSet, typ specs.LinuxNamespaceType) {
	if ns == nil || len(ns.Namespaces) == 0 {
		return
	}
	kept := ns.Namespaces[:0]
	for _, n := range ns.Namespaces {
		if n.Type != typ {
			kept = append(kept, n)
		}
	}
	ns.Namespaces = kept
}

// defaultNamespaceSet is the namespace set an Outer Runner requests for
// every run: fresh mount, pid, and net namespaces, plus a fresh user
// namespace when UID mapping is required to drop privileges without
// root on the host (see outer.go's buildSysProcAttr).
func defaultNamespaceSet(useUserNamespace bool) NamespaceSet {
	ns := NamespaceSet{}
	SetOrReplaceLinuxNamespace(&ns, specs.MountNamespace, "")
	SetOrReplaceLinuxNamespace(&ns, specs.PIDNamespace, "")
	SetOrReplaceLinuxNamespace(&ns, specs.NetworkNamespace, "")
	if useUserNamespace {
		SetOrReplaceLinuxNamespace(&ns, specs.UserNamespace, "")
	}
	return ns
}

// namespaceCloneFlags maps a fresh-namespace entry (Path == "") in ns to
// its CLONE_NEW* flag, the form syscall.SysProcAttr.Cloneflags wants. An
// entry with a non-empty Path would mean "join an existing namespace",
// which this engine never requests, so it contributes no flag.
func namespaceCloneFlags(ns NamespaceSet) uintptr {
	var flags uintptr
	for _, n := range ns.Namespaces {
		if n.Path != "" {
			continue
		}
		switch n.Type {
		case specs.MountNamespace:
			flags |= unix.CLONE_NEWNS
		case specs.PIDNamespace:
			flags |= unix.CLONE_NEWPID
		case specs.NetworkNamespace:
			flags |= unix.CLONE_NEWNET
		case specs.UserNamespace:
			flags |= unix.CLONE_NEWUSER
		}
	}
	return flags
}

// resourceLimits models the cgroup limits the Cgroup Controller applies,
// reusing specs.LinuxResources as the typed container instead of loose
// ints and strings.
func resourceLimits(pidsMax int64, memLimitBytes int64, cpusetCPUs, cpusetMems string) *specs.LinuxResources {
	return &specs.LinuxResources{
		Pids:   &specs.LinuxPids{Limit: pidsMax},
		Memory: &specs.LinuxMemory{Limit: &memLimitBytes, Swap: &memLimitBytes},
		CPU:    &specs.LinuxCPU{Cpus: cpusetCPUs, Mems: cpusetMems},
	}
}
