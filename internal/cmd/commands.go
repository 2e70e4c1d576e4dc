package cmd

import (
	"context"
	"os"

	cnst "github.com/piranna/usercore/internal/constants"
	"github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/internal/version"
	"github.com/piranna/usercore/pkg/dag"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/piranna/usercore/pkg/state"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "dry-run",
		Usage:   "print the dag for this boot and exit",
		EnvVars: []string{"USERCORE_DRY_RUN"},
	},
}

var Commands = []*cli.Command{
	{
		Name:  "version",
		Usage: "version",
		Action: func(c *cli.Context) error {
			v := version.Get()
			utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("usercore")
			return nil
		},
	},
	{
		Name:      "dag",
		Usage:     "dag [cmdline]",
		UsageText: "prints the dag a boot with the given parameters would run",
		Description: `
Builds the dag from the given boot parameters, or from the running kernel ones
when none are given, and prints it without running anything.
`,
		Action: func(c *cli.Context) error {
			cmdline := utils.ReadCmdline()
			if c.Args().Present() {
				cmdline = schema.ParseCmdline(c.Args().First())
			}
			s, err := newState(vfs.OSFS, cmdline)
			if err != nil {
				return err
			}
			g := herd.DAG(herd.EnableInit)
			if err := dag.Register(s, g); err != nil {
				return err
			}
			os.Stdout.WriteString(s.WriteDAG(g))
			return nil
		},
	},
}

func newState(fs vfs.FS, cmdline schema.BootCmdline) (*state.State, error) {
	layout, err := utils.ReadEnv(fs, cnst.LayoutFile)
	if err != nil {
		return nil, err
	}
	return state.New(fs, cmdline, utils.ScrubKernelEnv(), layout), nil
}

// Boot runs the whole boot. It only returns when the machine ends up in a
// console, otherwise it keeps reaping orphans forever.
func Boot(c *cli.Context) error {
	utils.SetLogger()

	v := version.Get()
	utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("usercore")

	cmdline := utils.ReadCmdline()
	utils.Log.Debug().Str("content", cmdline.String()).Msg("cmdline")

	s, err := newState(vfs.OSFS, cmdline)
	if err != nil {
		utils.Log.Warn().Err(err).Str("what", cnst.LayoutFile).Msg("reading layout, using defaults")
		s = state.New(vfs.OSFS, cmdline, utils.ScrubKernelEnv(), nil)
	}
	utils.Log.Info().Str("mode", string(s.Mode())).Str("boot", s.BootID.String()).Msg("Booting")

	g := herd.DAG(herd.EnableInit)
	if err := dag.Register(s, g); err != nil {
		return err
	}
	utils.Log.Info().Msg(s.WriteDAG(g))

	// Once we print the dag we can exit already
	if c.Bool("dry-run") {
		return nil
	}

	if err := g.Run(context.Background()); err != nil {
		utils.Log.Debug().Err(err).Msg("dag run")
	}
	utils.Log.Info().Msg(s.WriteDAG(g))

	if err := s.Finish(); err != nil {
		return cli.Exit(err.Error(), cnst.RecoveryExitCode)
	}
	utils.Idle()
	return nil
}
