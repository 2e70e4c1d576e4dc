package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/deniswernert/go-fstab"
	"github.com/joho/godotenv"
	"github.com/piranna/usercore/internal/constants"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

// ReadEnv parses an env file. A missing file is an empty env.
func ReadEnv(fsys vfs.FS, file string) (map[string]string, error) {
	f, err := fsys.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return godotenv.Parse(f)
}

// ScrubKernelEnv removes the boot parameters the kernel exported as
// environment variables and returns what they held.
func ScrubKernelEnv() map[string]string {
	res := map[string]string{}
	for _, k := range constants.KernelEnvKeys() {
		if v, ok := os.LookupEnv(k); ok {
			res[k] = v
			_ = os.Unsetenv(k)
		}
	}
	return res
}

// CreateIfNotExists creates a dir if it does not exist.
func CreateIfNotExists(fsys vfs.FS, path string) error {
	if _, err := fsys.Stat(path); os.IsNotExist(err) {
		return vfs.MkdirAll(fsys, path, os.ModePerm)
	}
	return nil
}

// CleanupSlice will clean a slice of strings of empty items
// Typos can be made on writing the layout.env file and that could introduce empty items
// In the lists that we need to go over, which causes bad stuff.
func CleanupSlice(slice []string) []string {
	var cleanSlice []string
	for _, item := range slice {
		if strings.Trim(item, " ") == "" {
			continue
		}
		cleanSlice = append(cleanSlice, item)
	}
	return cleanSlice
}

// UniqueSlice removes duplicated entries from a slice, keeping the first one.
func UniqueSlice(slice []string) []string {
	keys := make(map[string]bool)
	var list []string
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

// Fields splits a space separated env value dropping empty items.
func Fields(value string) []string {
	return CleanupSlice(strings.Fields(value))
}

// MountToFstab transforms a mount request into a fstab line.
func MountToFstab(m schema.MountRequest) *fstab.Mount {
	opts := map[string]string{}
	for _, o := range append(m.Flags.Words(), m.Options...) {
		key, value, _ := strings.Cut(o, "=")
		opts[key] = value
	}
	return &fstab.Mount{
		Spec:    m.Source,
		File:    m.Target,
		VfsType: m.Type,
		MntOps:  opts,
		Freq:    0,
		PassNo:  0,
	}
}

// PrepareCommandWithPath returns a command with the PATH set to the full
// system locations, the early environment only has /bin.
func PrepareCommandWithPath(c string) *exec.Cmd {
	cmd := exec.Command("/bin/sh", "-c", c)
	cmd.Env = os.Environ()
	pathAppend := "/usr/bin:/usr/sbin:/bin:/sbin"
	// try to extract any existing path from the environment
	for _, env := range cmd.Env {
		splitted := strings.Split(env, "=")
		if splitted[0] == "PATH" {
			pathAppend = fmt.Sprintf("%s:%s", pathAppend, splitted[1])
		}
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("PATH=%s", pathAppend))
	return cmd
}

func CommandWithPath(c string) (string, error) {
	cmd := PrepareCommandWithPath(c)
	o, err := cmd.CombinedOutput()
	return string(o), err
}
