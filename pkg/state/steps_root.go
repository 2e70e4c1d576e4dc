package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/op"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/spectrocloud-labs/herd"
)

// waitForDevice resolves a root spec and waits for the device to show up.
func (s *State) waitForDevice(spec string) (string, error) {
	device, err := internalUtils.ResolveDevice(s.FS, spec)
	if err != nil {
		return "", err
	}
	internalUtils.Log.Debug().Str("what", spec).Str("dev", device).Msg("Waiting for device")
	if err := s.Prober.WaitUntilExists(device, cnst.DefaultDeviceWait); err != nil {
		return "", err
	}
	return device, nil
}

// askForDevice keeps asking the operator for another location until one is
// found. An empty answer means there is no users filesystem.
func (s *State) askForDevice(spec string) (string, error) {
	for {
		device, err := s.waitForDevice(spec)
		if err == nil {
			return device, nil
		}
		internalUtils.Log.Warn().Err(err).Str("what", spec).Msg("Users filesystem not found")
		if s.Prompter == nil {
			return "", err
		}
		answer, perr := s.Prompter.Ask("path to users filesystem")
		if perr != nil {
			return "", fmt.Errorf("%w (asking for another location: %s)", err, perr)
		}
		if answer == "" {
			return "", cnst.ErrNoUsersFilesystem
		}
		spec = answer
	}
}

func (s *State) mountDevice(device, target, fsType string) error {
	m := op.DeviceMount(device, target, fsType, schema.NODEV|schema.NOSUID, "errors=remount-ro")
	err := m.Run(s.Mounter)
	if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
		return err
	}
	s.AddToFstab(&m.FstabEntry)
	return nil
}

// MountRootDagStep mounts the users filesystem device on the staging dir.
func (s *State) MountRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpMountRoot, append(opts, herd.WithCallback(s.fatal(cnst.OpMountRoot, func(_ context.Context) error {
		device, err := s.askForDevice(s.RootSpec)
		if err != nil {
			return err
		}
		internalUtils.Log.Info().Str("what", device).Str("where", cnst.RootStaging).Str("type", s.RootFSType).Msg("Mounting users filesystem")
		return s.mountDevice(device, cnst.RootStaging, s.RootFSType)
	})))...)
}

// ComposeRootDagStep stacks the users filesystem on top of the boot image.
func (s *State) ComposeRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpComposeRoot, append(opts, herd.WithCallback(s.fatal(cnst.OpComposeRoot, func(_ context.Context) error {
		overlay := schema.OverlaySpec{
			Lower: []string{"/"},
			Upper: filepath.Join(cnst.RootStaging, cnst.RootUpperName),
			Work:  filepath.Join(cnst.RootStaging, cnst.RootWorkName),
		}
		m, err := op.OverlayMount(s.FS, overlay, cnst.OverlayStaging, 0)
		if err != nil {
			return err
		}
		if err := m.Run(s.Mounter); err != nil {
			return err
		}
		s.setReached(schema.RootComposed)
		return nil
	})))...)
}

// RelocateRootDagStep makes the composed root the new / for good.
// The boot image root is made read-only, the kernel filesystems are moved in,
// then the composed root is moved over / and we chroot into it.
func (s *State) RelocateRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpRelocateRoot, append(opts, herd.WithCallback(s.fatal(cnst.OpRelocateRoot, func(_ context.Context) error {
		if err := s.Mounter.Remount("/", schema.RDONLY); err != nil {
			internalUtils.Log.Warn().Err(err).Msg("remounting boot image read-only")
		}

		for _, d := range []string{"/dev", "/proc", "/tmp"} {
			target := filepath.Join(cnst.OverlayStaging, d)
			internalUtils.Log.Debug().Str("what", d).Str("where", target).Msg("Moving mount")
			if err := s.Mounter.Move(d, target); err != nil {
				return err
			}
		}

		internalUtils.Log.Debug().Str("to", cnst.OverlayStaging).Msg("Changing dir")
		if err := s.Mounter.Chdir(cnst.OverlayStaging); err != nil {
			return err
		}
		internalUtils.Log.Debug().Str("what", cnst.OverlayStaging).Str("where", "/").Msg("Moving mount")
		if err := s.Mounter.Move(cnst.OverlayStaging, "/"); err != nil {
			return err
		}
		internalUtils.Log.Debug().Str("to", ".").Msg("Chrooting")
		if err := s.Mounter.Chroot("."); err != nil {
			return err
		}
		if err := s.Mounter.Chdir("/"); err != nil {
			return err
		}
		s.setReached(schema.Relocated)
		return nil
	})))...)
}

// MountUsersFSDagStep mounts a separate users filesystem on the home root when
// the boot parameters ask for one.
func (s *State) MountUsersFSDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpMountUsersFS, append(opts, herd.WithCallback(s.fatal(cnst.OpMountUsersFS, func(_ context.Context) error {
		if s.UsersFS == "" {
			return nil
		}
		device, err := s.waitForDevice(s.UsersFS)
		if err != nil {
			return err
		}
		internalUtils.Log.Info().Str("what", device).Str("where", s.HomeRoot).Str("type", s.UsersFSType).Msg("Mounting home filesystem")
		return s.mountDevice(device, s.HomeRoot, s.UsersFSType)
	})))...)
}

// EphemeralDagStep stands for the missing users filesystem. Nothing would
// survive a reboot, so the operator gets the recovery console instead.
func (s *State) EphemeralDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpEphemeral, append(opts, herd.WithCallback(s.fatal(cnst.OpEphemeral, func(_ context.Context) error {
		internalUtils.Log.Warn().Msg("no users filesystem, using ephemeral storage")
		return cnst.ErrNoUsersFilesystem
	})))...)
}
