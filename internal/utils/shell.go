package utils

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"
)

var ErrNoTerminal = errors.New("no interactive terminal available")

// ShellConsole is the interactive console used for recovery and for the
// administrator mode.
type ShellConsole struct {
	Shells []string
}

// Run starts the first available shell and waits until the operator leaves it.
func (c ShellConsole) Run(label string) error {
	var shell string
	for _, s := range c.Shells {
		if _, err := os.Stat(s); err == nil {
			shell = s
			break
		}
	}
	if shell == "" {
		return fmt.Errorf("no shell found in %s", strings.Join(c.Shells, ", "))
	}

	Log.Info().Str("shell", shell).Str("label", label).Msg("Starting console")
	cmd := exec.Command(shell)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), fmt.Sprintf("PS1=%s> ", label))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.SysProcAttr.Setctty = true
		cmd.SysProcAttr.Ctty = 0
	}
	return cmd.Run()
}

// SurveyPrompter asks the operator on the console.
type SurveyPrompter struct{}

func (SurveyPrompter) Ask(message string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", ErrNoTerminal
	}
	var answer string
	err := survey.AskOne(&survey.Input{Message: message}, &answer)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
