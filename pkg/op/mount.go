package op

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/containerd/containerd/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sys/unix"
)

// Mounter is the set of mount namespace primitives the boot pipeline uses.
// Implementations never retry.
type Mounter interface {
	Mount(req schema.MountRequest) error
	Move(source, target string) error
	Remount(target string, flags schema.MountFlags) error
	Unmount(target string) error
	Chdir(path string) error
	Chroot(path string) error
	Mounted(path string) (bool, error)
}

// SyscallMounter issues the real syscalls. Targets are created on FS first.
type SyscallMounter struct {
	FS vfs.FS
}

func NewSyscallMounter(fs vfs.FS) *SyscallMounter {
	return &SyscallMounter{FS: fs}
}

func (s *SyscallMounter) Mount(req schema.MountRequest) error {
	if err := internalUtils.CreateIfNotExists(s.FS, req.Target); err != nil {
		return fmt.Errorf("creating mountpoint %s: %w", req.Target, err)
	}

	types := []string{req.Type}
	if req.Type == constants.AutoFSType {
		var err error
		if types, err = s.BlockFilesystems(); err != nil {
			return err
		}
	}

	var err error
	for _, t := range types {
		m := mount.Mount{
			Type:    t,
			Source:  req.Source,
			Options: append(req.Flags.Words(), req.Options...),
		}
		if err = mount.All([]mount.Mount{m}, req.Target); err == nil {
			internalUtils.Log.Debug().Str("what", req.Source).Str("where", req.Target).Str("type", t).Msg("mounted")
			return nil
		}
	}
	return fmt.Errorf("mounting %s: %w", req, err)
}

// BlockFilesystems lists the filesystems the kernel can mount from a device,
// in the order it registered them.
func (s *SyscallMounter) BlockFilesystems() ([]string, error) {
	data, err := s.FS.ReadFile("/proc/filesystems")
	if err != nil {
		return nil, fmt.Errorf("reading supported filesystems: %w", err)
	}
	var types []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "nodev") {
			continue
		}
		if t := strings.TrimSpace(line); t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no block filesystem supported by the kernel")
	}
	return types, nil
}

func (s *SyscallMounter) Move(source, target string) error {
	if err := internalUtils.CreateIfNotExists(s.FS, target); err != nil {
		return fmt.Errorf("creating mountpoint %s: %w", target, err)
	}
	if err := unix.Mount(source, target, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("moving %s to %s: %w", source, target, err)
	}
	return nil
}

func (s *SyscallMounter) Remount(target string, flags schema.MountFlags) error {
	if err := unix.Mount("", target, "", uintptr(flags|schema.REMOUNT), ""); err != nil {
		return fmt.Errorf("remounting %s: %w", target, err)
	}
	return nil
}

func (s *SyscallMounter) Unmount(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmounting %s: %w", target, err)
	}
	return nil
}

func (s *SyscallMounter) Chdir(path string) error {
	if err := unix.Chdir(path); err != nil {
		return fmt.Errorf("chdir %s: %w", path, err)
	}
	return nil
}

func (s *SyscallMounter) Chroot(path string) error {
	if err := unix.Chroot(path); err != nil {
		return fmt.Errorf("chroot %s: %w", path, err)
	}
	return nil
}

func (s *SyscallMounter) Mounted(path string) (bool, error) {
	return mountinfo.Mounted(path)
}
