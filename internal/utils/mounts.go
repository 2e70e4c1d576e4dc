package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

var diskByPrefixes = []struct {
	prefix string
	dir    string
}{
	{"PARTUUID=", "/dev/disk/by-partuuid"},
	{"PARTLABEL=", "/dev/disk/by-partlabel"},
	{"UUID=", "/dev/disk/by-uuid"},
	{"LABEL=", "/dev/disk/by-label"},
}

// GetHostProcCmdline returns the path to /proc/cmdline
// Or the override set via HOST_PROC_CMDLINE env var.
func GetHostProcCmdline() string {
	proc := os.Getenv("HOST_PROC_CMDLINE")
	if proc == "" {
		return "/proc/cmdline"
	}
	return proc
}

// ReadCmdline parses the boot parameters. An unreadable cmdline is empty.
func ReadCmdline() schema.BootCmdline {
	cmdLine, err := os.ReadFile(GetHostProcCmdline())
	if err != nil {
		return schema.BootCmdline{}
	}
	return schema.ParseCmdline(string(cmdLine))
}

// input: LABEL=FOO
// output: /dev/disk/by-label/FOO
func ParseMount(s string) string {
	for _, p := range diskByPrefixes {
		if strings.HasPrefix(s, p.prefix) {
			return filepath.Join(p.dir, strings.TrimPrefix(s, p.prefix))
		}
	}
	return s
}

// BlockPartitions lists the partitions known to the kernel.
var BlockPartitions = func() ([]*block.Partition, error) {
	blk, err := ghw.Block()
	if err != nil {
		return nil, err
	}
	var parts []*block.Partition
	for _, disk := range blk.Disks {
		parts = append(parts, disk.Partitions...)
	}
	return parts, nil
}

// ResolveDevice turns a root spec into a device path. Symlink directories
// under /dev/disk only exist once udev ran, without them the partitions are
// matched directly.
func ResolveDevice(fs vfs.FS, spec string) (string, error) {
	path := ParseMount(spec)
	if path == spec {
		return spec, nil
	}
	if _, err := fs.Stat(filepath.Dir(path)); err == nil {
		return path, nil
	}

	parts, err := BlockPartitions()
	if err != nil {
		return "", err
	}
	key, value, _ := strings.Cut(spec, "=")
	for _, p := range parts {
		var candidate string
		switch key {
		case "LABEL":
			candidate = p.FilesystemLabel
		case "PARTLABEL":
			candidate = p.Label
		case "UUID", "PARTUUID":
			candidate = p.UUID
		}
		if candidate != "" && strings.EqualFold(candidate, value) {
			Log.Debug().Str("what", spec).Str("dev", p.Name).Str("type", p.Type).Msg("resolved device from block list")
			return filepath.Join("/dev", p.Name), nil
		}
	}
	return "", fmt.Errorf("no block device matches %s", spec)
}
