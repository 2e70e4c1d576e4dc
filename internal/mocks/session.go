package mocks

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

type FakeLauncher struct {
	FailFor map[string]error

	mu       sync.Mutex
	launched []schema.UserSession
}

func (f *FakeLauncher) Launch(session schema.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[session.Name]; ok {
		return err
	}
	f.launched = append(f.launched, session)
	return nil
}

// Launched returns the launched sessions sorted by name.
func (f *FakeLauncher) Launched() []schema.UserSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := append([]schema.UserSession{}, f.launched...)
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (f *FakeLauncher) Names() []string {
	var names []string
	for _, s := range f.Launched() {
		names = append(names, s.Name)
	}
	return names
}

// FakeDeviceHelper populates the target with a couple of nodes when provisioned.
type FakeDeviceHelper struct {
	FS         vfs.FS
	Present    bool
	Provisions []string
	Reclaimed  bool
}

func (f *FakeDeviceHelper) Available() bool {
	return f.Present
}

func (f *FakeDeviceHelper) Provision(target string) error {
	f.Provisions = append(f.Provisions, target)
	if err := f.FS.Chmod(target, 0o755); err != nil {
		return err
	}
	for _, n := range []string{"null", "zero"} {
		if err := f.FS.WriteFile(filepath.Join(target, n), []byte{}, os.ModePerm); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeDeviceHelper) Reclaim() error {
	f.Reclaimed = true
	return nil
}

type FakeConsole struct {
	Labels []string
}

func (f *FakeConsole) Run(label string) error {
	f.Labels = append(f.Labels, label)
	return nil
}

// FakePrompter hands out Answers in order and fails once they run out.
type FakePrompter struct {
	Answers []string
	Asked   int
}

func (f *FakePrompter) Ask(_ string) (string, error) {
	if f.Asked >= len(f.Answers) {
		f.Asked++
		return "", errors.New("no more answers")
	}
	a := f.Answers[f.Asked]
	f.Asked++
	return a, nil
}
