// Package app configures the solver command line application.
package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli"

	"github.com/onlyswaps/solver/cli/run"
	"github.com/onlyswaps/solver/pkg/config"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "onlyswaps-solver\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates the solver instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "onlyswaps-solver"
	ctl.Version = config.Version
	ctl.Usage = "Cross-chain swap solver"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, run.NewCommands()...)
	return ctl
}
