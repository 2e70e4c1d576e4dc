package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deniswernert/go-fstab"
	"golang.org/x/sys/unix"
)

// MountFlags is the subset of kernel mount flags the pipeline issues.
type MountFlags uintptr

const (
	NODEV   MountFlags = unix.MS_NODEV
	NOSUID  MountFlags = unix.MS_NOSUID
	NOEXEC  MountFlags = unix.MS_NOEXEC
	BIND    MountFlags = unix.MS_BIND
	MOVE    MountFlags = unix.MS_MOVE
	REMOUNT MountFlags = unix.MS_REMOUNT
	RDONLY  MountFlags = unix.MS_RDONLY
)

func (f MountFlags) Has(flag MountFlags) bool {
	return f&flag == flag
}

// Words renders the flags the way mount(8) and fstab spell them.
func (f MountFlags) Words() []string {
	var words []string
	for _, w := range []struct {
		flag MountFlags
		word string
	}{
		{RDONLY, "ro"},
		{NODEV, "nodev"},
		{NOSUID, "nosuid"},
		{NOEXEC, "noexec"},
		{BIND, "bind"},
		{REMOUNT, "remount"},
	} {
		if f.Has(w.flag) {
			words = append(words, w.word)
		}
	}
	return words
}

// MountRequest describes a single mount to issue. Type may be "auto".
type MountRequest struct {
	Source  string
	Target  string
	Type    string
	Flags   MountFlags
	Options []string
}

func (m MountRequest) String() string {
	return fmt.Sprintf("%s on %s type %s (%s)", m.Source, m.Target, m.Type, strings.Join(append(m.Flags.Words(), m.Options...), ","))
}

var ErrInvalidOverlay = errors.New("invalid overlay")

// OverlaySpec is a union filesystem description. The first lower layer has
// the highest precedence.
type OverlaySpec struct {
	Lower []string
	Upper string
	Work  string
}

func (o OverlaySpec) Validate() error {
	if len(o.Lower) == 0 {
		return fmt.Errorf("%w: no lower layer", ErrInvalidOverlay)
	}
	if o.Upper == "" || o.Work == "" {
		return fmt.Errorf("%w: upper and work directories are required", ErrInvalidOverlay)
	}
	if o.Upper == o.Work {
		return fmt.Errorf("%w: upper and work are the same directory %s", ErrInvalidOverlay, o.Upper)
	}
	for _, l := range o.Lower {
		if l == o.Upper || l == o.Work {
			return fmt.Errorf("%w: %s is used both as lower and as upper or work", ErrInvalidOverlay, l)
		}
	}
	return nil
}

func (o OverlaySpec) Options() []string {
	return []string{
		fmt.Sprintf("lowerdir=%s", strings.Join(o.Lower, ":")),
		fmt.Sprintf("upperdir=%s", o.Upper),
		fmt.Sprintf("workdir=%s", o.Work),
	}
}

// Request builds the overlay mount at target.
func (o OverlaySpec) Request(target string, flags MountFlags) MountRequest {
	return MountRequest{
		Source:  "overlay",
		Target:  target,
		Type:    "overlay",
		Flags:   flags,
		Options: o.Options(),
	}
}

// UserSession is everything needed to start one tenant.
type UserSession struct {
	Name    string
	Home    string // persistent upper layer, also the ownership reference
	Workdir string
	View    string // where the composed root of the tenant is mounted
	Init    string // init program, relative to View once chrooted
	UID     uint32
	GID     uint32
}

type BootState int

const (
	Booting BootState = iota
	KernelMountsReady
	RootComposed
	Relocated
	SessionRootReady
	UserSessionsLaunched
	RecoveryRepl
)

func (b BootState) String() string {
	switch b {
	case KernelMountsReady:
		return "kernel-mounts-ready"
	case RootComposed:
		return "root-composed"
	case Relocated:
		return "relocated"
	case SessionRootReady:
		return "session-root-ready"
	case UserSessionsLaunched:
		return "user-sessions-launched"
	case RecoveryRepl:
		return "recovery-repl"
	default:
		return "booting"
	}
}

type FsTabs []*fstab.Mount
