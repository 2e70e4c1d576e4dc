package op

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/piranna/usercore/pkg/schema"
)

// Launcher starts the init program of a session and returns once it is running.
type Launcher interface {
	Launch(session schema.UserSession) error
}

// ExecLauncher starts the init chrooted into the session view, in its own
// session and with the owner credentials. It does not wait for it.
type ExecLauncher struct {
	Env []string
}

func DefaultSessionEnv() []string {
	return []string{"PATH=/bin", "LD_LIBRARY_PATH=/lib"}
}

// command is the init of session as it will run: chrooted into its view, in
// a new session, with the owner credentials and no supplementary groups.
func (e ExecLauncher) command(session schema.UserSession) *exec.Cmd {
	env := e.Env
	if env == nil {
		env = DefaultSessionEnv()
	}
	cmd := exec.Command(session.Init)
	cmd.Dir = "/"
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Chroot: session.View,
		Setsid: true,
		Credential: &syscall.Credential{
			Uid:    session.UID,
			Gid:    session.GID,
			Groups: []uint32{},
		},
	}
	return cmd
}

func (e ExecLauncher) Launch(session schema.UserSession) error {
	cmd := e.command(session)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s for %s: %w", session.Init, session.Name, err)
	}
	return cmd.Process.Release()
}
