package op

import (
	"os"

	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

func newOperation(req schema.MountRequest) MountOperation {
	return MountOperation{
		Request:    req,
		FstabEntry: *internalUtils.MountToFstab(req),
	}
}

// KernelMount mounts a pseudo filesystem where the source is the type.
func KernelMount(fsType, target string, flags schema.MountFlags, options ...string) MountOperation {
	return newOperation(schema.MountRequest{
		Source:  fsType,
		Target:  target,
		Type:    fsType,
		Flags:   flags,
		Options: options,
	})
}

func DeviceMount(device, target, fsType string, flags schema.MountFlags, options ...string) MountOperation {
	return newOperation(schema.MountRequest{
		Source:  device,
		Target:  target,
		Type:    fsType,
		Flags:   flags,
		Options: options,
	})
}

func TmpfsMount(target string, flags schema.MountFlags, options ...string) MountOperation {
	return KernelMount("tmpfs", target, flags, options...)
}

func BindMount(source, target string) MountOperation {
	return newOperation(schema.MountRequest{
		Source: source,
		Target: target,
		Type:   "none",
		Flags:  schema.BIND,
	})
}

// OverlayMount validates the overlay and makes sure its upper and work
// directories exist before mounting.
func OverlayMount(fs vfs.FS, overlay schema.OverlaySpec, target string, flags schema.MountFlags) (MountOperation, error) {
	if err := overlay.Validate(); err != nil {
		return MountOperation{}, err
	}
	m := newOperation(overlay.Request(target, flags))
	m.PrepareCallback = func() error {
		// Make sure workdir and/or upper exists
		if err := vfs.MkdirAll(fs, overlay.Upper, os.ModePerm); err != nil {
			return err
		}
		return vfs.MkdirAll(fs, overlay.Work, os.ModePerm)
	}
	return m, nil
}
