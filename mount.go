//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// readOnlyBindDirs are bound read-only from the host root into every
// sandbox, giving the measured command a usable toolchain view without
// granting write access to it.
var readOnlyBindDirs = []string{"dev", "sys", "bin", "lib", "lib64", "usr", "etc", "opt", "var", "home"}

// MountBuilder assembles the sandbox root under a fresh temporary
// directory, for a single Inner Runner invocation.
type MountBuilder struct {
	root        string   // the sandbox tree's temp root
	tmpParent   *os.File // fd for root's parent dir, opened before any chroot
	overlayDirs []string // upper/work dirs created for overlay mode, siblings of root
}

// NewMountBuilder creates the sandbox directory tree rooted at a fresh
// temp dir, host-owned and world-writable. It also opens an fd on the
// temp root's parent directory while the caller is still unchrooted:
// Close uses that fd to find its way back to real host paths even after
// the caller has since chrooted into root, since by then root's own
// absolute path no longer resolves to anything on the host side.
func NewMountBuilder() (*MountBuilder, error) {
	parentPath := os.TempDir()
	parent, err := os.Open(parentPath)
	if err != nil {
		return nil, &Error{Code: ErrMountSetup, Message: "open temp dir: " + err.Error(), cause: err}
	}

	root, err := os.MkdirTemp(parentPath, "lib-judge-sandbox-")
	if err != nil {
		parent.Close()
		return nil, &Error{Code: ErrMountSetup, Message: "create sandbox root: " + err.Error(), cause: err}
	}
	if err := os.Chmod(root, 0o777); err != nil {
		parent.Close()
		return nil, &Error{Code: ErrMountSetup, Message: "chmod sandbox root: " + err.Error(), cause: err}
	}
	return &MountBuilder{root: root, tmpParent: parent}, nil
}

// Root returns the sandbox tree's root directory.
func (b *MountBuilder) Root() string { return b.root }

// SandPath returns root/sand, the working directory exposed to the
// measured command.
func (b *MountBuilder) SandPath() string { return filepath.Join(b.root, "sand") }

// Build assembles the mount tree: bind or overlay work onto /sand,
// mounts a fresh proc, a writable /tmp, and the read-only host dirs. It
// returns the specs.Mount entries it performed, purely as a typed
// record useful for diagnostics; the mounts themselves are torn down
// implicitly when the caller's mount namespace dies.
func (b *MountBuilder) Build(workDir string, overlay bool) ([]specs.Mount, error) {
	var performed []specs.Mount

	sand := b.SandPath()
	if err := os.MkdirAll(sand, 0o755); err != nil {
		return nil, b.wrap("mkdir /sand", err)
	}
	if overlay {
		upper, err := os.MkdirTemp(os.TempDir(), "lib-judge-upper-")
		if err != nil {
			return nil, b.wrap("create overlay upperdir", err)
		}
		work, err := os.MkdirTemp(os.TempDir(), "lib-judge-work-")
		if err != nil {
			return nil, b.wrap("create overlay workdir", err)
		}
		b.overlayDirs = append(b.overlayDirs, upper, work)
		opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", workDir, upper, work)
		if err := unix.Mount("overlay", sand, "overlay", 0, opts); err != nil {
			return nil, b.wrap("mount overlay onto /sand", err)
		}
		performed = append(performed, specs.Mount{Source: "overlay", Destination: "/sand", Type: "overlay", Options: []string{opts}})
	} else {
		if err := unix.Mount(workDir, sand, "", unix.MS_BIND, ""); err != nil {
			return nil, b.wrap("bind-mount /sand", err)
		}
		performed = append(performed, specs.Mount{Source: workDir, Destination: "/sand", Type: "none", Options: []string{"bind"}})
	}

	procDir := filepath.Join(b.root, "proc")
	if err := os.MkdirAll(procDir, 0o755); err != nil {
		return nil, b.wrap("mkdir /proc", err)
	}
	if err := unix.Mount("proc", procDir, "proc", 0, ""); err != nil {
		return nil, b.wrap("mount /proc", err)
	}
	performed = append(performed, specs.Mount{Source: "proc", Destination: "/proc", Type: "proc"})

	tmpDir := filepath.Join(b.root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o777); err != nil {
		return nil, b.wrap("mkdir /tmp", err)
	}
	if err := os.Chmod(tmpDir, 0o777); err != nil {
		return nil, b.wrap("chmod /tmp", err)
	}

	for _, name := range readOnlyBindDirs {
		dst := filepath.Join(b.root, name)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return nil, b.wrap("mkdir /"+name, err)
		}
		src := "/" + name
		if _, err := os.Stat(src); err != nil {
			continue // host doesn't have this dir (e.g. no /lib64 on some distros); skip
		}
		if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			return nil, b.wrap("bind-mount /"+name, err)
		}
		if err := unix.Mount("", dst, "", unix.MS_BIND|unix.MS_RDONLY|unix.MS_REMOUNT, ""); err != nil {
			return nil, b.wrap("remount /"+name+" read-only", err)
		}
		performed = append(performed, specs.Mount{Source: src, Destination: "/" + name, Type: "none", Options: []string{"bind", "ro"}})
	}

	return performed, nil
}

func (b *MountBuilder) wrap(action string, err error) error {
	return &Error{Code: ErrMountSetup, Message: action + ": " + err.Error(), cause: err}
}

// Close removes the sandbox tree, and any overlay upper/work dirs beside
// it, from disk. By the time Close runs, the caller has normally already
// chrooted into root, so root's own absolute path no longer resolves to
// the real host directory and a plain os.RemoveAll(b.root) silently
// no-ops (RemoveAll treats ENOENT as success), leaking the tree on every
// run. Fchdir-ing into the parent fd opened before the chroot sidesteps
// that: it resolves by fd, not by path, so it lands in the real host
// temp dir regardless of the caller's current root, and every removal
// after that can use a plain relative name.
func (b *MountBuilder) Close() error {
	if b.tmpParent == nil {
		return os.RemoveAll(b.root)
	}
	defer b.tmpParent.Close()

	if err := unix.Fchdir(int(b.tmpParent.Fd())); err != nil {
		return &Error{Code: ErrMountSetup, Message: "fchdir to sandbox parent: " + err.Error(), cause: err}
	}
	var firstErr error
	for _, dir := range append([]string{b.root}, b.overlayDirs...) {
		if err := os.RemoveAll(filepath.Base(dir)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
