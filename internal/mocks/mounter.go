package mocks

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

// FakeMounter records every primitive and mirrors its visible effect on a
// test filesystem: targets are created and moves rename directories.
type FakeMounter struct {
	FS     vfs.FS
	FailOn map[string]error // keyed by target, by "chroot"/"chdir" or by "mounted <path>"

	mu      sync.Mutex
	calls   []string
	mounted map[string]schema.MountRequest
}

func NewFakeMounter(fs vfs.FS) *FakeMounter {
	return &FakeMounter{
		FS:      fs,
		FailOn:  map[string]error{},
		mounted: map[string]schema.MountRequest{},
	}
}

func (f *FakeMounter) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeMounter) fail(key string) error {
	if err, ok := f.FailOn[key]; ok {
		return err
	}
	return nil
}

func (f *FakeMounter) Mount(req schema.MountRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("mount %s %s %s", req.Type, req.Source, req.Target))
	if err := f.fail(req.Target); err != nil {
		return err
	}
	if err := vfs.MkdirAll(f.FS, req.Target, os.ModePerm); err != nil {
		return err
	}
	f.mounted[req.Target] = req
	return nil
}

func (f *FakeMounter) Move(source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("move %s %s", source, target))
	if err := f.fail(target); err != nil {
		return err
	}
	if source == "." || target == "/" {
		return nil
	}
	if _, err := f.FS.Stat(source); err == nil {
		if err := vfs.MkdirAll(f.FS, filepath.Dir(target), os.ModePerm); err != nil {
			return err
		}
		_ = f.FS.RemoveAll(target)
		if err := f.FS.Rename(source, target); err != nil {
			return err
		}
	}
	if req, ok := f.mounted[source]; ok {
		delete(f.mounted, source)
		req.Target = target
		f.mounted[target] = req
	}
	return nil
}

func (f *FakeMounter) Remount(target string, flags schema.MountFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("remount %s %v", target, flags.Words()))
	return f.fail(target)
}

func (f *FakeMounter) Unmount(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("unmount %s", target))
	delete(f.mounted, target)
	return nil
}

func (f *FakeMounter) Chdir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("chdir %s", path))
	return f.fail("chdir")
}

func (f *FakeMounter) Chroot(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("chroot %s", path))
	return f.fail("chroot")
}

func (f *FakeMounter) Mounted(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("mounted " + path); err != nil {
		return false, err
	}
	_, ok := f.mounted[path]
	return ok, nil
}

// MarkMounted simulates a mount done behind our back, like devtmpfs automount.
func (f *FakeMounter) MarkMounted(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted[target] = schema.MountRequest{Target: target}
}

func (f *FakeMounter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

// Request returns what is mounted on target.
func (f *FakeMounter) Request(target string) (schema.MountRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.mounted[target]
	return req, ok
}
