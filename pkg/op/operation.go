package op

import (
	"github.com/deniswernert/go-fstab"
	"github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
)

type MountOperation struct {
	FstabEntry      fstab.Mount
	Request         schema.MountRequest
	PrepareCallback func() error
}

func (m MountOperation) Run(mounter Mounter) error {
	// Add context to sublogger
	l := internalUtils.Log.With().Str("what", m.Request.Source).Str("where", m.Request.Target).Str("type", m.Request.Type).Strs("options", m.Request.Options).Logger()

	if m.PrepareCallback != nil {
		if err := m.PrepareCallback(); err != nil {
			l.Warn().Err(err).Msg("executing mount callback")
			return err
		}
	}
	mounted, err := mounter.Mounted(m.Request.Target)
	if err != nil {
		l.Debug().Err(err).Msg("checking mount status")
	}
	if mounted {
		l.Debug().Msg("Already mounted")
		return constants.ErrAlreadyMounted
	}
	l.Debug().Msg("mount ready")
	return mounter.Mount(m.Request)
}
