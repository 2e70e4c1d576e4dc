package state

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"

	"github.com/hashicorp/go-multierror"
	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/op"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

// KernelMounts are the pseudo filesystems mounted first, in order.
func KernelMounts() []op.MountOperation {
	return []op.MountOperation{
		op.DeviceMount("udev", "/dev", "devtmpfs", 0, "mode=0755"),
		op.KernelMount("proc", "/proc", schema.NODEV|schema.NOEXEC|schema.NOSUID, "hidepid=2"),
		op.TmpfsMount("/tmp", schema.NODEV|schema.NOEXEC|schema.NOSUID, "mode=1777"),
	}
}

// KernelMountsDagStep mounts /dev, /proc and /tmp. A failed mount is logged
// and the boot goes on degraded, the kernel may have done it already.
// Paths only needed to get here are removed from the boot image, before it
// becomes the lower layer of the root.
func (s *State) KernelMountsDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpKernelMounts, append(opts, herd.WithCallback(s.degraded(cnst.OpKernelMounts, func(_ context.Context) error {
		var err error
		for _, m := range KernelMounts() {
			e := m.Run(s.Mounter)
			if e == nil || errors.Is(e, cnst.ErrAlreadyMounted) {
				s.AddToFstab(&m.FstabEntry)
				continue
			}
			internalUtils.Log.Err(e).Str("what", m.Request.Source).Str("where", m.Request.Target).Str("type", m.Request.Type).Msg("Mounting")
			err = multierror.Append(err, e)
		}

		internalUtils.Log.Debug().Strs("what", s.BootOnlyPaths).Msg("Removing boot only paths")
		if e := s.removeAll(s.BootOnlyPaths); e != nil {
			err = multierror.Append(err, e)
		}

		s.setReached(schema.KernelMountsReady)
		return err
	})))...)
}

// BasicEnvironmentDagStep lays out what every program expects in /etc and
// brings up the loopback interface.
func (s *State) BasicEnvironmentDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpBasicEnvironment, append(opts, herd.WithCallback(s.degraded(cnst.OpBasicEnvironment, func(_ context.Context) error {
		var err error
		if _, e := s.FS.Stat("/etc"); errors.Is(e, iofs.ErrNotExist) {
			if e = vfs.MkdirAll(s.FS, "/etc", 0o100); e != nil {
				err = multierror.Append(err, e)
			}
		}

		for target, link := range map[string]string{
			"/proc/mounts":  "/etc/mtab",
			"/proc/net/pnp": "/etc/resolv.conf",
		} {
			e := s.FS.Symlink(target, link)
			if e != nil && !errors.Is(e, iofs.ErrExist) {
				internalUtils.Log.Err(e).Str("from", target).Str("to", link).Msg("Symlink")
				err = multierror.Append(err, e)
			}
		}

		_ = os.Setenv("LD_LIBRARY_PATH", "/lib")

		if s.LinkUp != nil {
			if e := s.LinkUp(); e != nil {
				internalUtils.Log.Warn().Err(e).Msg("bringing loopback up")
			}
		}
		return err
	})))...)
}

// LoadKernelModulesDagStep loads the drivers the storage may need.
func (s *State) LoadKernelModulesDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpLoadModules, append(opts, herd.WithCallback(s.degraded(cnst.OpLoadModules, func(_ context.Context) error {
		if s.LoadModules == nil {
			return nil
		}
		return s.LoadModules()
	})))...)
}
