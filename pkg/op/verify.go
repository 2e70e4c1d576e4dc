package op

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/twpayne/go-vfs/v4"
)

var (
	ErrInitNotRegular = errors.New("init is not a regular file")
	ErrOwnerMismatch  = errors.New("init is not owned by the owner of its home")
)

func owner(info fs.FileInfo) (uid, gid uint32, err error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("no ownership information for %s", info.Name())
	}
	return st.Uid, st.Gid, nil
}

// VerifyInit checks that init is a regular file, not following symlinks, owned
// by the same uid and gid as home. It returns that owner.
func VerifyInit(fsys vfs.FS, home, init string) (uid, gid uint32, err error) {
	info, err := fsys.Lstat(init)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", init, err)
	}
	if !info.Mode().IsRegular() {
		return 0, 0, fmt.Errorf("%s: %w", init, ErrInitNotRegular)
	}
	initUID, initGID, err := owner(info)
	if err != nil {
		return 0, 0, err
	}
	homeInfo, err := fsys.Stat(home)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", home, err)
	}
	homeUID, homeGID, err := owner(homeInfo)
	if err != nil {
		return 0, 0, err
	}
	if initUID != homeUID || initGID != homeGID {
		return 0, 0, fmt.Errorf("%s (%d:%d) vs %s (%d:%d): %w", init, initUID, initGID, home, homeUID, homeGID, ErrOwnerMismatch)
	}
	return homeUID, homeGID, nil
}
