package dag

import (
	cnst "github.com/piranna/usercore/internal/constants"
	"github.com/piranna/usercore/pkg/state"
	"github.com/spectrocloud-labs/herd"
)

// RegisterDeviceBoot registers the dag for booting with a users filesystem
// device. The device is stacked over the boot image, the result becomes the
// new / and then the sessions are started from it.
func RegisterDeviceBoot(s *state.State, g *herd.Graph) error {
	// Mount /dev, /proc and /tmp
	s.LogIfError(s.KernelMountsDagStep(g), "kernel mounts")

	// Populate /etc on the boot image, it ends up as the lower layer
	s.LogIfError(s.BasicEnvironmentDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts)), "basic environment")

	// Storage drivers may be modules
	s.LogIfError(s.LoadKernelModulesDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts, cnst.OpBasicEnvironment)), "kernel modules")

	s.LogIfError(s.MountRootDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts, cnst.OpBasicEnvironment, cnst.OpLoadModules)), "mount root")

	s.LogIfError(s.ComposeRootDagStep(g, herd.WithDeps(cnst.OpMountRoot)), "compose root")

	s.LogIfError(s.RelocateRootDagStep(g, herd.WithDeps(cnst.OpComposeRoot)), "relocate root")

	registerSessions(s, g, herd.WithDeps(cnst.OpRelocateRoot))
	return nil
}

// RegisterContainerBoot registers the dag for booting when the storage is
// already in place, for example inside a container.
func RegisterContainerBoot(s *state.State, g *herd.Graph) error {
	s.LogIfError(s.KernelMountsDagStep(g), "kernel mounts")

	s.LogIfError(s.BasicEnvironmentDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts)), "basic environment")

	// Both ops before are degraded, a failure there must not stop the users
	registerSessions(s, g, herd.WithWeakDeps(cnst.OpKernelMounts, cnst.OpBasicEnvironment))
	return nil
}

// RegisterEphemeralBoot registers the dag used when no users filesystem was
// given. It ends in the recovery console.
func RegisterEphemeralBoot(s *state.State, g *herd.Graph) error {
	s.LogIfError(s.KernelMountsDagStep(g), "kernel mounts")

	s.LogIfError(s.BasicEnvironmentDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts)), "basic environment")

	s.LogIfError(s.EphemeralDagStep(g, herd.WithWeakDeps(cnst.OpKernelMounts, cnst.OpBasicEnvironment)), "ephemeral storage")
	return nil
}

// Register picks the dag for the boot mode of the state.
func Register(s *state.State, g *herd.Graph) error {
	switch s.Mode() {
	case state.ContainerBoot:
		return RegisterContainerBoot(s, g)
	case state.EphemeralBoot:
		return RegisterEphemeralBoot(s, g)
	default:
		return RegisterDeviceBoot(s, g)
	}
}

// registerSessions adds the session ops, after tells what the first of them
// waits for.
func registerSessions(s *state.State, g *herd.Graph, after herd.OpOption) {
	// Separate home filesystem, if any
	s.LogIfError(s.MountUsersFSDagStep(g, after), "users filesystem")

	// Run the rootfs stage from hooks and cmdline
	s.LogIfError(s.RootfsStageDagStep(g, herd.WithDeps(cnst.OpMountUsersFS)), "rootfs hook")

	s.LogIfError(s.WriteFstabDagStep(g, herd.WithDeps(cnst.OpMountUsersFS), herd.WithWeakDeps(cnst.OpRootfsHook)), "fstab")

	s.LogIfError(s.SessionsDagStep(g, herd.WithDeps(cnst.OpMountUsersFS), herd.WithWeakDeps(cnst.OpRootfsHook, cnst.OpWriteFstab)), "sessions")
}
