package state

import (
	"fmt"

	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
)

// Finish decides what happens once the pipeline ran. After a fatal failure,
// and in single mode, the console is handed to the operator and an error is
// returned once it is closed. A nil error means the sessions own the machine.
func (s *State) Finish() error {
	if f := s.Failure(); f != nil {
		internalUtils.Log.Error().Err(f.Err).Str("op", f.Op).Str("reached", f.Reached.String()).Msg("Boot failed, starting recovery console")
		s.setReached(schema.RecoveryRepl)
		s.runConsole(fmt.Sprintf("recovery: %s", f.Op))
		return f
	}

	if label := s.Handoff(); label != "" {
		s.runConsole(label)
		return cnst.ErrConsoleClosed
	}

	internalUtils.Log.Info().Int("sessions", len(s.Sessions())).Str("reached", s.Reached().String()).Msg("Boot done")
	return nil
}

func (s *State) runConsole(label string) {
	if s.Console == nil {
		internalUtils.Log.Error().Str("label", label).Msg("No console available")
		return
	}
	s.LogIfError(s.Console.Run(label), "console")
}
