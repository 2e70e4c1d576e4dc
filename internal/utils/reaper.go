package utils

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Reap collects every child that already exited and returns their pids.
func Reap() []int {
	var pids []int
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return pids
		}
		Log.Debug().Int("pid", pid).Int("status", ws.ExitStatus()).Msg("reaped child")
		pids = append(pids, pid)
	}
}

// Idle never returns. As the first process every orphan is re-parented to
// us, so their exit status is collected here. Children that exited before
// we got here are collected first.
func Idle() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGCHLD)
	Reap()
	for range sigs {
		Reap()
	}
}
