package op

import (
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

var (
	ErrNotExists  = errors.New("not exists")
	ErrNotMounted = errors.New("not mounted")
)

// Prober polls the filesystem until a path shows up. Waiting only blocks the
// calling goroutine.
type Prober struct {
	FS       vfs.FS
	Interval time.Duration
}

func NewProber(fs vfs.FS) Prober {
	return Prober{FS: fs, Interval: time.Second}
}

func attempts(maxTries int) uint {
	if maxTries < 0 {
		maxTries = 0
	}
	return uint(maxTries + 1)
}

// WaitUntilExists checks for path at most maxTries+1 times. Any stat failure
// counts as absent.
func (p Prober) WaitUntilExists(path string, maxTries int) error {
	return retry.Do(
		func() error {
			if _, err := p.FS.Stat(path); err != nil {
				return fmt.Errorf("%s %w", path, ErrNotExists)
			}
			return nil
		},
		retry.Attempts(attempts(maxTries)),
		retry.Delay(p.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			internalUtils.Log.Debug().Str("what", path).Uint("try", n+1).Msg("waiting for path")
		}),
	)
}

// WaitUntilPopulated waits for a directory to hold more than one entry, which
// is the sign a filesystem was mounted on it. A read error is returned at once.
func (p Prober) WaitUntilPopulated(path string, maxTries int) error {
	return retry.Do(
		func() error {
			entries, err := p.FS.ReadDir(path)
			if err != nil {
				return err
			}
			if len(entries) > 1 {
				return nil
			}
			return fmt.Errorf("%s %w", path, ErrNotMounted)
		},
		retry.Attempts(attempts(maxTries)),
		retry.Delay(p.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrNotMounted)
		}),
	)
}
