package utils

import (
	"fmt"

	"github.com/mudler/go-kdetect"
)

// LoadKernelModules loads the drivers detected for the present hardware.
// Storage controllers need them before their device nodes show up.
func LoadKernelModules() error {
	drivers, err := kdetect.ProbeKernelModules("")
	if err != nil {
		Log.Err(err).Msg("Detecting needed modules")
		return err
	}
	Log.Debug().Strs("drivers", drivers).Msg("Detecting needed modules")
	for _, driver := range drivers {
		cmd := fmt.Sprintf("modprobe %s", driver)
		out, err := CommandWithPath(cmd)
		if err != nil {
			Log.Debug().Err(err).Str("out", out).Msg("modprobe")
		}
	}
	return nil
}
