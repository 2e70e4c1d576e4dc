package profile

import (
	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
)

// Layout is where things live on the users filesystem, from
// /etc/usercore/layout.env.
type Layout struct {
	HomeRoot     string
	AdminName    string
	SessionsRoot string
	Devices      DeviceHelper
	// Removed before the boot image becomes the lower layer of the root
	BootOnlyPaths []string
	// Removed once the sessions are started
	CleanupPaths []string
	HookPaths    []string
}

type DeviceHelper struct {
	Path string
	// Runtime files of the helper, removed once /dev is populated
	Support []string
}

func Default() Layout {
	return Layout{
		HomeRoot:     cnst.HomeRoot,
		AdminName:    cnst.AdminName,
		SessionsRoot: cnst.SessionsRoot,
		Devices: DeviceHelper{
			Path:    cnst.DeviceHelper,
			Support: cnst.DefaultDeviceHelperSupport(),
		},
		BootOnlyPaths: cnst.DefaultBootOnlyPaths(),
		CleanupPaths:  cnst.DefaultCleanupPaths(),
		HookPaths:     cnst.GetHookPaths(),
	}
}

// FromEnv overrides the defaults with the keys found in env. A list key that
// is present but empty clears the list.
func FromEnv(env map[string]string) Layout {
	l := Default()
	for key, dst := range map[string]*string{
		"HOME_ROOT":     &l.HomeRoot,
		"ADMIN_NAME":    &l.AdminName,
		"SESSIONS_ROOT": &l.SessionsRoot,
		"DEVICE_HELPER": &l.Devices.Path,
	} {
		if v := env[key]; v != "" {
			*dst = v
		}
	}
	for key, dst := range map[string]*[]string{
		"DEVICE_HELPER_SUPPORT": &l.Devices.Support,
		"BOOT_ONLY_PATHS":       &l.BootOnlyPaths,
		"CLEANUP_PATHS":         &l.CleanupPaths,
		"HOOK_PATHS":            &l.HookPaths,
	} {
		if v, ok := env[key]; ok {
			*dst = internalUtils.UniqueSlice(internalUtils.Fields(v))
		}
	}
	return l
}
