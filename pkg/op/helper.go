package op

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sys/unix"
)

// DeviceHelper provides a filtered view of /dev where each user only sees the
// device nodes it owns.
type DeviceHelper interface {
	Available() bool
	Provision(target string) error
	Reclaim() error
}

type ExclusiveDeviceHelper struct {
	FS      vfs.FS
	Path    string
	Support []string
}

func (h ExclusiveDeviceHelper) Available() bool {
	raw, err := h.FS.RawPath(h.Path)
	if err != nil {
		return false
	}
	return unix.Access(raw, unix.X_OK) == nil
}

// command runs the helper in its own session. Its errors go to our console.
func (h ExclusiveDeviceHelper) command(raw, target string) *exec.Cmd {
	cmd := exec.Command(raw, "/dev", target, "-o", "ownerPerm=true")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// Provision starts the helper detached, serving /dev on target.
func (h ExclusiveDeviceHelper) Provision(target string) error {
	raw, err := h.FS.RawPath(h.Path)
	if err != nil {
		return err
	}
	cmd := h.command(raw, target)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting device helper: %w", err)
	}
	internalUtils.Log.Debug().Int("pid", cmd.Process.Pid).Str("where", target).Msg("device helper started")
	return cmd.Process.Release()
}

// Reclaim removes the helper and its support files, they are not reachable
// from the sessions anyway.
func (h ExclusiveDeviceHelper) Reclaim() error {
	for _, p := range append([]string{h.Path}, h.Support...) {
		if err := h.FS.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}
