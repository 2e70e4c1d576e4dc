package main

import (
	"fmt"
	"os"

	"github.com/piranna/usercore/internal/cmd"
	"github.com/piranna/usercore/internal/version"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

// Boot the users filesystem and start a session per user.
func main() {
	// Nothing we create is meant for anybody else
	unix.Umask(0o066)

	app := cli.NewApp()
	app.Name = "usercore"
	app.Usage = "mount the users filesystem and start their sessions"
	app.Version = version.GetVersion()
	app.Authors = []*cli.Author{{Name: "usercore authors"}}
	app.Flags = cmd.Flags
	app.Commands = cmd.Commands
	app.Action = cmd.Boot

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
