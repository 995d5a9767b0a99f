//go:build linux

package sandbox

import (
	"errors"
	"strings"
	"syscall"
)

// ErrorCode classifies the internal reason a sandbox operation failed.
// It is distinct from the RunResult/Judgement status codes in types.go:
// an ErrorCode describes *why the engine itself* could not complete a
// step, not the verdict the engine reports for a measured program.
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrCgroupSetup
	ErrMountSetup
	ErrNamespaceSetup
	ErrProtocolDesync
	ErrMissingObject
	ErrStagingFailed
	ErrPermissionDenied
	ErrWorkerNotRunning
	ErrInvalidRequest
)

// Sentinel errors for errors.Is() checks against well-known failure modes.
var (
	ErrCgroupUnavailable  = &Error{Code: ErrCgroupSetup, Message: "cgroup controller unavailable"}
	ErrMountFailed        = &Error{Code: ErrMountSetup, Message: "sandbox mount setup failed"}
	ErrWorkerDesync       = &Error{Code: ErrProtocolDesync, Message: "worker protocol desynchronized"}
	ErrDeclaredObjectGone = &Error{Code: ErrMissingObject, Message: "declared object missing after run"}
	ErrNotRunning         = &Error{Code: ErrWorkerNotRunning, Message: "worker is not running"}
)

// Error wraps an internal engine failure with a structured code.
// It never carries contestant-facing text; RunResult.Status and
// Judgement verdicts are the only strings that flow outward.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int // errno value, when the cause was a syscall
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// classifyError maps a low-level error string to an ErrorCode, used when
// wrapping syscall or subprocess failures whose origin isn't already typed.
func classifyError(msg string, status int) ErrorCode {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "cgroup"):
		return ErrCgroupSetup
	case strings.Contains(lower, "mount") || strings.Contains(lower, "chroot"):
		return ErrMountSetup
	case strings.Contains(lower, "namespace") || strings.Contains(lower, "unshare") || strings.Contains(lower, "clone"):
		return ErrNamespaceSetup
	case strings.Contains(lower, "permission") || status == 1 || status == 13: // EPERM, EACCES
		return ErrPermissionDenied
	case strings.Contains(lower, "missing") || strings.Contains(lower, "not found"):
		return ErrMissingObject
	default:
		return ErrUnknown
	}
}

// wrapSyscallError builds an Error for a failure whose origin isn't
// already typed by its call site, classifying it from action+err's text
// and, when err unwraps to a syscall.Errno, from that errno's value.
func wrapSyscallError(action string, err error) *Error {
	var errno syscall.Errno
	status := 0
	if errors.As(err, &errno) {
		status = int(errno)
	}
	message := action + ": " + err.Error()
	return &Error{Code: classifyError(message, status), Message: message, Status: status, cause: err}
}
