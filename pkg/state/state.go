package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deniswernert/go-fstab"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/op"
	"github.com/piranna/usercore/pkg/profile"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

// Console is an interactive shell handed to the operator.
type Console interface {
	Run(label string) error
}

// Prompter asks the operator for a value.
type Prompter interface {
	Ask(message string) (string, error)
}

type BootMode string

const (
	DeviceBoot    BootMode = "device"
	ContainerBoot BootMode = "container"
	EphemeralBoot BootMode = "ephemeral"
)

// StageError is the fatal failure of an op, and the last state reached.
type StageError struct {
	Op      string
	Reached schema.BootState
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (reached %s): %s", e.Op, e.Reached, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type State struct {
	Cmdline     schema.BootCmdline
	RootSpec    string // e.g. LABEL=users, /dev/sda1 or container
	RootFSType  string // auto unless given
	UsersFS     string // optional separate device mounted on HomeRoot
	UsersFSType string
	Single      bool // stop at the administrator console

	// /etc/usercore/layout.env
	HomeRoot      string   // e.g. /home
	AdminName     string   // e.g. root
	SessionsRoot  string   // e.g. /run/sessions
	BootOnlyPaths []string // e.g. /init /sbin
	CleanupPaths  []string // e.g. /usr
	HookPaths     []string

	FS           vfs.FS
	Mounter      op.Mounter
	Prober       op.Prober
	Launcher     op.Launcher
	DeviceHelper op.DeviceHelper
	Console      Console
	Prompter     Prompter
	LoadModules  func() error
	RunHooks     func(stage string, paths ...string) error
	LinkUp       func() error

	BootID uuid.UUID

	mu       sync.Mutex
	reached  schema.BootState
	failure  *StageError
	handoff  string
	fstabs   schema.FsTabs
	sessions []schema.UserSession
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// New builds the state from the boot parameters, the variables the kernel
// exported for them, and the layout file. Collaborators are the real ones.
func New(fs vfs.FS, cmdline schema.BootCmdline, kernelEnv, layout map[string]string) *State {
	l := profile.FromEnv(layout)
	return &State{
		Cmdline:     cmdline,
		RootSpec:    firstNonEmpty(kernelEnv["ROOT"], kernelEnv["root"], cmdline.Get("root")),
		RootFSType:  firstNonEmpty(kernelEnv["ROOTFSTYPE"], kernelEnv["rootfstype"], cmdline.Get("rootfstype"), cnst.AutoFSType),
		UsersFS:     cmdline.Get("usersfs"),
		UsersFSType: firstNonEmpty(cmdline.Get("usersfstype"), cnst.AutoFSType),
		Single:      cmdline.Has("single"),

		HomeRoot:      l.HomeRoot,
		AdminName:     l.AdminName,
		SessionsRoot:  l.SessionsRoot,
		BootOnlyPaths: l.BootOnlyPaths,
		CleanupPaths:  l.CleanupPaths,
		HookPaths:     l.HookPaths,

		FS:       fs,
		Mounter:  op.NewSyscallMounter(fs),
		Prober:   op.NewProber(fs),
		Launcher: op.ExecLauncher{},
		DeviceHelper: op.ExclusiveDeviceHelper{
			FS:      fs,
			Path:    l.Devices.Path,
			Support: l.Devices.Support,
		},
		Console:     internalUtils.ShellConsole{Shells: cnst.DefaultShells()},
		Prompter:    internalUtils.SurveyPrompter{},
		LoadModules: internalUtils.LoadKernelModules,
		RunHooks:    internalUtils.RunStage,
		LinkUp:      internalUtils.LoopbackUp,
		BootID:      internalUtils.NewBootID(),
	}
}

// Mode tells which pipeline the root spec asks for.
func (s *State) Mode() BootMode {
	switch s.RootSpec {
	case "":
		return EphemeralBoot
	case cnst.ContainerRoot:
		return ContainerBoot
	default:
		return DeviceBoot
	}
}

func (s *State) adminHome() string {
	return filepath.Join(s.HomeRoot, s.AdminName)
}

func (s *State) setReached(b schema.BootState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reached = b
}

// Reached is the last state the pipeline got to.
func (s *State) Reached() schema.BootState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reached
}

// Failure is the fatal error that halted the pipeline, if any.
func (s *State) Failure() *StageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *State) Handoff() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handoff
}

// Sessions returns the launched sessions, administrator included.
func (s *State) Sessions() []schema.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.UserSession{}, s.sessions...)
}

func (s *State) addSession(session schema.UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
}

// fatal wraps the callback of an op the rest of the pipeline can't do without.
// Once one failed, every later op returns ErrPipelineHalted without acting.
func (s *State) fatal(name string, f func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.Failure() != nil {
			return cnst.ErrPipelineHalted
		}
		err := f(ctx)
		if err != nil {
			s.mu.Lock()
			s.failure = &StageError{Op: name, Reached: s.reached, Err: err}
			s.mu.Unlock()
			internalUtils.Log.Err(err).Str("op", name).Msg("fatal")
		}
		return err
	}
}

// degraded wraps the callback of an op whose failure is only logged.
func (s *State) degraded(name string, f func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.Failure() != nil {
			return cnst.ErrPipelineHalted
		}
		return s.LogIfErrorAndReturn(f(ctx), name)
	}
}

func (s *State) WriteFstab() func(context.Context) error {
	return func(ctx context.Context) error {
		// Create the file first, override if something is there
		fstabFile := "/etc/fstab"
		if err := internalUtils.CreateIfNotExists(s.FS, filepath.Dir(fstabFile)); err != nil {
			return err
		}
		f, err := s.FS.Create(fstabFile)
		if err != nil {
			return err
		}
		defer f.Close()
		s.mu.Lock()
		entries := append(schema.FsTabs{}, s.fstabs...)
		s.mu.Unlock()
		for _, fst := range entries {
			internalUtils.Log.Debug().Str("what", fst.String()).Msg("Adding line to fstab")
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				if _, err := fmt.Fprintf(f, "%s\n", fst.String()); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// WriteDAG writes the dag.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, op := range layer {
			if op.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s) (background: %t) (weak: %t) (run: %t)\n", op.Name, op.Error.Error(), op.Background, op.WeakDeps, op.Executed)
			} else {
				out += fmt.Sprintf(" <%s> (background: %t) (weak: %t) (run: %t)\n", op.Name, op.Background, op.WeakDeps, op.Executed)
			}
		}
	}
	return
}

// LogIfError will log if there is an error with the given context as message
// Context can be empty.
func (s *State) LogIfError(e error, msgContext string) {
	if e != nil {
		internalUtils.Log.Err(e).Msg(msgContext)
	}
}

// LogIfErrorAndReturn will log if there is an error with the given context as message
// Context can be empty
// Will also return the error.
func (s *State) LogIfErrorAndReturn(e error, msgContext string) error {
	if e != nil {
		internalUtils.Log.Err(e).Msg(msgContext)
	}
	return e
}

// AddToFstab will try to add an entry to the fstab list
// Will check if the entry exists before adding it to avoid duplicates.
func (s *State) AddToFstab(tmpFstab *fstab.Mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fstabs {
		if f.File == tmpFstab.File {
			internalUtils.Log.Debug().Interface("existing", f).Interface("duplicated", tmpFstab).Msg("Duplicated fstab entry found, not adding")
			return
		}
	}
	s.fstabs = append(s.fstabs, tmpFstab)
}

func (s *State) Fstabs() schema.FsTabs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(schema.FsTabs{}, s.fstabs...)
}

// removeAll deletes paths, a missing path is not an error.
func (s *State) removeAll(paths []string) error {
	var errs *multierror.Error
	for _, p := range paths {
		if err := s.FS.RemoveAll(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			internalUtils.Log.Warn().Err(err).Str("what", p).Msg("removing")
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
