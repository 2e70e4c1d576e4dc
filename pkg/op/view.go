package op

import (
	"errors"
	"fmt"
	"path/filepath"

	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
)

// SessionView is the composed root of a session: its overlay plus the kernel
// filesystems a program started inside it expects.
type SessionView struct {
	Path    string
	Overlay MountOperation
	Proc    string // where /proc is bound from
	Dev     string // where /dev is bound from

	mounter      Mounter
	activeMounts []string
}

func NewSessionView(mounter Mounter, path string, overlay MountOperation, proc, dev string) *SessionView {
	return &SessionView{
		Path:    path,
		Overlay: overlay,
		Proc:    proc,
		Dev:     dev,
		mounter: mounter,
	}
}

// Prepare mounts the overlay and the default mounts. On failure everything
// mounted so far is unmounted again.
func (v *SessionView) Prepare() (err error) {
	if len(v.activeMounts) > 0 {
		return errors.New("there are already active mountpoints for this view")
	}

	defer func() {
		if err != nil {
			_ = v.Close()
		}
	}()

	ops := []MountOperation{
		v.Overlay,
		BindMount(v.Proc, filepath.Join(v.Path, "proc")),
		TmpfsMount(filepath.Join(v.Path, "tmp"), schema.NODEV|schema.NOSUID),
		BindMount(v.Dev, filepath.Join(v.Path, "dev")),
	}
	for _, o := range ops {
		if err = o.Run(v.mounter); err != nil {
			internalUtils.Log.Err(err).Str("where", o.Request.Target).Str("what", o.Request.Source).Msg("Mounting session view")
			return err
		}
		v.activeMounts = append(v.activeMounts, o.Request.Target)
	}
	return nil
}

// Close will unmount all active mounts created in Prepare on reverse order.
func (v *SessionView) Close() error {
	failures := []string{}
	for len(v.activeMounts) > 0 {
		curr := v.activeMounts[len(v.activeMounts)-1]
		internalUtils.Log.Debug().Str("what", curr).Msg("Unmounting from session view")
		v.activeMounts = v.activeMounts[:len(v.activeMounts)-1]
		if err := v.mounter.Unmount(curr); err != nil {
			internalUtils.Log.Err(err).Str("what", curr).Msg("Error unmounting")
			failures = append(failures, curr)
		}
	}
	if len(failures) > 0 {
		v.activeMounts = failures
		return fmt.Errorf("failed closing session view. Unmount failures: %v", failures)
	}
	return nil
}
