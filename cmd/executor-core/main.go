//go:build linux

// Command executor-core is the timing helper the Inner Runner execs in
// place of the measured command: executor-core <time-output-path> <cmd>
// <args...>. It forks the child, waits for it, writes the child's
// elapsed user+system CPU time in seconds to the given path, and exits
// with the child's own status. Measuring here, the process closest to
// the child, avoids the jitter a chroot/cgexec/sh -c chain would add if
// timing were done from further outside it.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: executor-core <time-output-path> <cmd> [args...]")
		os.Exit(2)
	}
	timePath := os.Args[1]
	cmd := exec.Command(os.Args[2], os.Args[3:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	writeCPUTime(timePath, cmd.ProcessState)

	if runErr == nil {
		os.Exit(0)
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			os.Exit(128 + int(status.Signal()))
		}
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintln(os.Stderr, "executor-core:", runErr)
	os.Exit(127)
}

func writeCPUTime(path string, state *os.ProcessState) {
	var seconds float64
	if state != nil {
		if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
			seconds = timevalSeconds(ru.Utime) + timevalSeconds(ru.Stime)
		}
	}
	_ = os.WriteFile(path, []byte(strconv.FormatFloat(seconds, 'f', 6, 64)), 0o644)
}

func timevalSeconds(tv syscall.Timeval) float64 {
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}
