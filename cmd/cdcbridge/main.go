// Command cdcbridge drives a VW CD-changer emulator and a BT1036 Bluetooth
// module so that phone audio plays through a head unit's CD changer input.
//
// Usage:
//
//	cdcbridge run [--config path] [--demo] [--listen addr] [--log-level level]
//	cdcbridge frame --disc 1 --track 5 --time 3:45 [--scan] [--random]
//	cdcbridge version
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "cdcbridge",
		Usage:          "Bluetooth audio through a VW CD changer input",
		Version:        version,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			runCommand(),
			frameCommand(),
			versionCommand(),
		},
	}
}

// exitErrHandler prints the error and preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "cdcbridge %s\n", version)
			return nil
		},
	}
}
