package state

import (
	"context"

	cnst "github.com/piranna/usercore/internal/constants"
	internalUtils "github.com/piranna/usercore/internal/utils"
	"github.com/spectrocloud-labs/herd"
)

// Shared steps for all the workflows

// RootfsStageDagStep will add the rootfs stage.
func (s *State) RootfsStageDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpRootfsHook, append(opts, herd.WithCallback(s.degraded(cnst.OpRootfsHook, s.RunStageOp("usercore.rootfs"))))...)
}

// RunStageOp runs the hooks of a stage from the hook paths and the cmdline.
func (s *State) RunStageOp(stage string) func(context.Context) error {
	return func(_ context.Context) error {
		if s.RunHooks == nil {
			return nil
		}
		internalUtils.Log.Info().Str("stage", stage).Msg("Running stage")
		return s.RunHooks(stage, s.HookPaths...)
	}
}

// WriteFstabDagStep writes the mounts done so far to /etc/fstab.
func (s *State) WriteFstabDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteFstab, append(opts, herd.WithCallback(s.degraded(cnst.OpWriteFstab, s.WriteFstab())))...)
}
