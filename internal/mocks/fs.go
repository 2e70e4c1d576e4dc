package mocks

import (
	iofs "io/fs"
	"syscall"

	"github.com/twpayne/go-vfs/v4"
)

// OwnerFS reports Path as owned by UID:GID whatever its real owner is.
type OwnerFS struct {
	vfs.FS
	Path     string
	UID, GID uint32
}

type ownerInfo struct {
	iofs.FileInfo
	uid, gid uint32
}

func (o ownerInfo) Sys() any {
	return &syscall.Stat_t{Uid: o.uid, Gid: o.gid}
}

func (o OwnerFS) Lstat(name string) (iofs.FileInfo, error) {
	info, err := o.FS.Lstat(name)
	if err != nil || name != o.Path {
		return info, err
	}
	return ownerInfo{FileInfo: info, uid: o.UID, gid: o.GID}, nil
}
