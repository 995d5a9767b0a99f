//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// cgroupControllers are the v1 controllers the engine manages under one
// named cgroup. cgroup v2's unified hierarchy is out of scope: this
// engine addresses the classic per-controller v1 layout, the same way
// `cgexec -g cpuset,memory:lib-judge` does.
var cgroupControllers = []string{"pids", "cpuset", "memory"}

// CgroupController owns the lifecycle of the singleton "lib-judge"
// cgroup, a process-wide singleton addressed by a fixed name. One
// CgroupController should exist per worker process.
type CgroupController struct {
	root string // e.g. /sys/fs/cgroup
	name string // e.g. "lib-judge"
}

// NewCgroupController returns a controller for the named cgroup rooted
// at root (normally "/sys/fs/cgroup").
func NewCgroupController(root, name string) *CgroupController {
	return &CgroupController{root: root, name: name}
}

func (c *CgroupController) path(controller string) string {
	return filepath.Join(c.root, controller, c.name)
}

// Reset deletes any stale cgroup left by a previous run, then recreates
// it and applies the fixed limits. Deleting a non-existent cgroup is not
// an error: setup must be idempotent against a previous crash.
func (c *CgroupController) Reset() error {
	if err := c.teardown(); err != nil {
		return err
	}
	for _, ctrl := range cgroupControllers {
		if err := os.MkdirAll(c.path(ctrl), 0o755); err != nil {
			return &Error{Code: ErrCgroupSetup, Message: fmt.Sprintf("create %s cgroup: %v", ctrl, err), cause: err}
		}
	}
	res := resourceLimits(1000, 1073741824, "0", "0")
	limits := map[string]map[string]string{
		"pids":   {"pids.max": strconv.FormatInt(res.Pids.Limit, 10)},
		"cpuset": {"cpuset.cpus": res.CPU.Cpus, "cpuset.mems": res.CPU.Mems},
		"memory": {"memory.limit_in_bytes": strconv.FormatInt(*res.Memory.Limit, 10), "memory.memsw.limit_in_bytes": strconv.FormatInt(*res.Memory.Swap, 10)},
	}
	for ctrl, files := range limits {
		for file, value := range files {
			if err := c.writeFile(ctrl, file, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// teardown removes the cgroup directories if present. rmdir on a cgroupfs
// directory requires it to hold no tasks; the caller is expected to have
// reaped every process before calling Reset.
func (c *CgroupController) teardown() error {
	for _, ctrl := range cgroupControllers {
		p := c.path(ctrl)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return &Error{Code: ErrCgroupSetup, Message: fmt.Sprintf("remove stale %s cgroup: %v", ctrl, err), cause: err}
		}
	}
	return nil
}

func (c *CgroupController) writeFile(controller, file, value string) error {
	p := filepath.Join(c.path(controller), file)
	if err := os.WriteFile(p, []byte(value), 0o644); err != nil {
		return &Error{Code: ErrCgroupSetup, Message: fmt.Sprintf("write %s: %v", p, err), cause: err}
	}
	return nil
}

// AddProcess moves pid into every controller of this cgroup. Must be
// called before the measured command starts doing real work; the Inner
// Runner adds itself immediately after Reset.
func (c *CgroupController) AddProcess(pid int) error {
	for _, ctrl := range cgroupControllers {
		if err := c.writeFile(ctrl, "cgroup.procs", strconv.Itoa(pid)); err != nil {
			return err
		}
	}
	return nil
}

// PeakMemory reads memory.max_usage_in_bytes, the high-water mark since
// the last reset, used as peak RSS for the RunResult once the measured
// command exits.
func (c *CgroupController) PeakMemory() (int64, error) {
	p := filepath.Join(c.path("memory"), "memory.max_usage_in_bytes")
	raw, err := os.ReadFile(p)
	if err != nil {
		return -1, &Error{Code: ErrCgroupSetup, Message: fmt.Sprintf("read %s: %v", p, err), cause: err}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return -1, &Error{Code: ErrCgroupSetup, Message: fmt.Sprintf("parse %s: %v", p, err), cause: err}
	}
	return v, nil
}
