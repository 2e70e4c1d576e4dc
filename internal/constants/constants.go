package constants

import "errors"

var (
	ErrAlreadyMounted    = errors.New("already mounted")
	ErrNoUsersFilesystem = errors.New("no users filesystem")
	// ErrPipelineHalted is returned by every op scheduled after a fatal one.
	ErrPipelineHalted = errors.New("pipeline halted by a previous failure")
	ErrConsoleClosed  = errors.New("console closed")
)

const (
	OpKernelMounts     = "kernel-mounts"
	OpLoadModules      = "load-modules"
	OpMountRoot        = "mount-root"
	OpComposeRoot      = "compose-root"
	OpRelocateRoot     = "relocate-root"
	OpBasicEnvironment = "basic-environment"
	OpMountUsersFS     = "mount-usersfs"
	OpRootfsHook       = "rootfs-hook"
	OpWriteFstab       = "write-fstab"
	OpSessions         = "session-bootstrap"
	OpEphemeral        = "ephemeral-storage"

	// ContainerRoot as root spec means the storage is already in place.
	ContainerRoot = "container"
	AutoFSType    = "auto"

	RootStaging    = "/.rootfs"
	OverlayStaging = "/.overlayfs"
	RootUpperName  = "rootfs"
	RootWorkName   = "workdir"

	HomeRoot        = "/home"
	AdminName       = "root"
	AdminMountPoint = "/root"
	WorkdirsName    = ".workdirs"
	LostFound       = "lost+found"
	SessionsRoot    = "/run/sessions"
	SessionInit     = "init"

	DeviceHelper = "/bin/exclfs"

	LayoutFile = "/etc/usercore/layout.env"
	HooksDir   = "/etc/usercore/hooks.d"

	DefaultDeviceWait = 5
	DefaultDevWait    = 5

	// RecoveryExitCode is what the process exits with once a recovery or
	// administrator shell returns.
	RecoveryExitCode = 2

	AdminModeLabel = "Administrator mode"
)

// KernelEnvKeys are the boot parameters exported to the environment that must
// not leak to tenant programs.
func KernelEnvKeys() []string {
	return []string{"ROOT", "root", "ROOTFSTYPE", "rootfstype", "vga"}
}

// DefaultBootOnlyPaths are removed from the live root once relocated.
func DefaultBootOnlyPaths() []string {
	return []string{"/init", "/sbin"}
}

// DefaultDeviceHelperSupport are removed together with the helper binary once
// it has been started, they are only reachable from the boot image.
func DefaultDeviceHelperSupport() []string {
	return []string{"/lib/exclfs"}
}

// DefaultCleanupPaths are removed after the sessions have been launched.
func DefaultCleanupPaths() []string {
	return []string{"/lib/usercore", "/usr"}
}

func DefaultShells() []string {
	return []string{"/bin/sh", "/bin/bash", "/bin/ash"}
}

func GetHookPaths() []string {
	return []string{HooksDir, "/run/usercore/hooks.d"}
}
