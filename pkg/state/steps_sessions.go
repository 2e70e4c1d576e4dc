package state

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/op"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sync/errgroup"
)

// IsTenant tells whether a home root entry is a user to start.
func IsTenant(name, admin string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && name != admin && name != cnst.LostFound
}

// Tenants filters names down to the users to start, keeping their order.
func Tenants(names []string, admin string) []string {
	var res []string
	for _, n := range names {
		if IsTenant(n, admin) {
			res = append(res, n)
		}
	}
	return res
}

// SessionsDagStep composes the administrator root, starts its init and then
// every user in parallel.
func (s *State) SessionsDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpSessions, append(opts, herd.WithCallback(s.fatal(cnst.OpSessions, s.bootstrapSessions)))...)
}

func (s *State) bootstrapSessions(_ context.Context) error {
	// Only a mount point can be moved
	mounted, err := s.Mounter.Mounted(s.HomeRoot)
	if err != nil {
		internalUtils.Log.Debug().Err(err).Str("where", s.HomeRoot).Msg("checking home root mount status")
	}
	if !mounted {
		if err := op.BindMount(s.HomeRoot, s.HomeRoot).Run(s.Mounter); err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
			return err
		}
	}

	hasAdmin := true
	if _, err := s.FS.Stat(s.adminHome()); err != nil {
		if !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("reading administrator home: %w", err)
		}
		hasAdmin = false
	}

	base, proc, dev := s.HomeRoot, "/proc", "/dev"
	if hasAdmin {
		if err := s.composeAdmin(); err != nil {
			return err
		}
		base = filepath.Join(s.HomeRoot, "home")
		proc = filepath.Join(s.HomeRoot, "proc")
		dev = filepath.Join(s.HomeRoot, "dev")
	} else {
		internalUtils.Log.Info().Str("where", s.adminHome()).Msg("No administrator, starting users only")
	}
	s.setReached(schema.SessionRootReady)

	if hasAdmin {
		if s.Single {
			internalUtils.Log.Info().Msg("single mode, handing the console to the administrator")
			s.mu.Lock()
			s.handoff = cnst.AdminModeLabel
			s.mu.Unlock()
			return nil
		}
		if err := s.launchAdmin(base); err != nil {
			internalUtils.Log.Warn().Err(err).Msg("administrator init")
		}
	}

	err = s.launchTenants(base, proc, dev)

	internalUtils.Log.Debug().Strs("what", s.CleanupPaths).Msg("Removing boot only paths")
	s.LogIfError(s.removeAll(s.CleanupPaths), "cleanup")
	return err
}

// mkWorkdir creates the overlay work dir of a session, reachable only by us.
func (s *State) mkWorkdir(base, name string) (string, error) {
	parent := filepath.Join(base, cnst.WorkdirsName)
	if err := vfs.MkdirAll(s.FS, parent, 0o711); err != nil {
		return "", err
	}
	workdir := filepath.Join(parent, name)
	if err := vfs.MkdirAll(s.FS, workdir, 0o100); err != nil {
		return "", err
	}
	return workdir, nil
}

// composeAdmin turns the home root into the administrator root: its overlay
// is built on /root, the home root moves under it and the result takes the
// place of the home root. Users then live in <home root>/home.
func (s *State) composeAdmin() error {
	workdir, err := s.mkWorkdir(s.HomeRoot, s.AdminName)
	if err != nil {
		return err
	}
	overlay := schema.OverlaySpec{Lower: []string{"/"}, Upper: s.adminHome(), Work: workdir}
	m, err := op.OverlayMount(s.FS, overlay, cnst.AdminMountPoint, schema.NOSUID)
	if err != nil {
		return err
	}
	if err := m.Run(s.Mounter); err != nil {
		return err
	}

	nested := filepath.Join(cnst.AdminMountPoint, "home")
	internalUtils.Log.Debug().Str("what", s.HomeRoot).Str("where", nested).Msg("Moving mount")
	if err := s.Mounter.Move(s.HomeRoot, nested); err != nil {
		return err
	}
	internalUtils.Log.Debug().Str("what", cnst.AdminMountPoint).Str("where", s.HomeRoot).Msg("Moving mount")
	if err := s.Mounter.Move(cnst.AdminMountPoint, s.HomeRoot); err != nil {
		return err
	}

	if err := s.provisionDevices(filepath.Join(s.HomeRoot, "dev")); err != nil {
		return err
	}
	if err := op.BindMount("/proc", filepath.Join(s.HomeRoot, "proc")).Run(s.Mounter); err != nil {
		return err
	}
	return op.TmpfsMount(filepath.Join(s.HomeRoot, "tmp"), schema.NODEV|schema.NOSUID).Run(s.Mounter)
}

// provisionDevices gives the administrator its /dev. With the device helper
// every user only sees the nodes it owns, otherwise /dev is shared.
func (s *State) provisionDevices(target string) error {
	if s.DeviceHelper == nil || !s.DeviceHelper.Available() {
		return op.BindMount("/dev", target).Run(s.Mounter)
	}
	if err := vfs.MkdirAll(s.FS, target, 0); err != nil {
		return err
	}
	if err := s.DeviceHelper.Provision(target); err != nil {
		return err
	}
	if err := s.Prober.WaitUntilPopulated(target, cnst.DefaultDevWait); err != nil {
		return err
	}
	s.LogIfError(s.DeviceHelper.Reclaim(), "removing device helper")
	return nil
}

// verify checks the init of the session and fills in who runs it.
func (s *State) verify(session *schema.UserSession) error {
	uid, gid, err := op.VerifyInit(s.FS, session.Home, filepath.Join(session.Home, session.Init))
	if err != nil {
		return err
	}
	session.UID, session.GID = uid, gid
	return nil
}

func (s *State) launch(session schema.UserSession) error {
	internalUtils.Log.Info().
		Str("user", session.Name).
		Str("session", internalUtils.SessionID(s.BootID, session.Name).String()).
		Str("where", session.View).
		Uint32("uid", session.UID).
		Msg("Starting session")
	if err := s.Launcher.Launch(session); err != nil {
		return err
	}
	s.addSession(session)
	return nil
}

func (s *State) launchAdmin(base string) error {
	session := schema.UserSession{
		Name: s.AdminName,
		Home: filepath.Join(base, s.AdminName),
		View: s.HomeRoot,
		Init: "/" + cnst.SessionInit,
	}
	if err := s.verify(&session); err != nil {
		return err
	}
	return s.launch(session)
}

// launchTenants starts every user found in base. A failing user never stops
// the others, the step only fails when none could be started.
func (s *State) launchTenants(base, proc, dev string) error {
	entries, err := s.FS.ReadDir(base)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	names = Tenants(names, s.AdminName)
	if len(names) == 0 {
		internalUtils.Log.Warn().Str("where", base).Msg("No users found")
		return nil
	}
	if err := vfs.MkdirAll(s.FS, filepath.Join(base, cnst.WorkdirsName), 0o711); err != nil {
		return err
	}

	var mu sync.Mutex
	var errs *multierror.Error
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		eg.Go(func() error {
			if err := s.bootstrapTenant(base, name, proc, dev); err != nil {
				internalUtils.Log.Err(err).Str("user", name).Msg("Starting session")
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if errs != nil && len(errs.Errors) == len(names) {
		return errs
	}
	if errs != nil {
		internalUtils.Log.Warn().Int("failed", len(errs.Errors)).Int("total", len(names)).Msg("Some sessions failed to start")
	}
	s.setReached(schema.UserSessionsLaunched)
	return nil
}

func (s *State) bootstrapTenant(base, name, proc, dev string) error {
	home := filepath.Join(base, name)
	session := schema.UserSession{
		Name: name,
		Home: home,
		View: filepath.Join(s.SessionsRoot, name),
		Init: "/" + cnst.SessionInit,
	}
	if err := s.verify(&session); err != nil {
		return err
	}

	workdir, err := s.mkWorkdir(base, name)
	if err != nil {
		return err
	}
	session.Workdir = workdir
	overlay, err := op.OverlayMount(s.FS, schema.OverlaySpec{Lower: []string{"/"}, Upper: home, Work: workdir}, session.View, schema.NOSUID)
	if err != nil {
		return err
	}
	view := op.NewSessionView(s.Mounter, session.View, overlay, proc, dev)
	if err := view.Prepare(); err != nil {
		return err
	}
	if err := s.launch(session); err != nil {
		s.LogIfError(view.Close(), "closing session view")
		return err
	}
	return nil
}
