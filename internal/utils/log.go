package utils

import (
	"os"

	"github.com/kairos-io/kairos-sdk/types"
	"github.com/rs/zerolog"
)

// KLog is the generic KairosLogger that we pass to yip.
var KLog types.KairosLogger

// Log is usable before SetLogger runs, it writes to the console only.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func SetLogger() {
	level := "info"

	// Set debug level
	debug := ReadCmdline().Has("rd.usercore.debug")
	debugFromEnv := os.Getenv("USERCORE_DEBUG") != ""
	if debug || debugFromEnv {
		level = "debug"
	}

	KLog = types.NewKairosLogger("usercore", level, false)
	Log = KLog.Logger
}
