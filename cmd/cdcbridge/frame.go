package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/shaunagostinho/cdc-bridge/internal/cdc"
)

// frameCommand prints the play frame the emulator would send, for checking
// captures from a logic analyser.
func frameCommand() *cli.Command {
	return &cli.Command{
		Name:  "frame",
		Usage: "Print the status frame for a disc, track and play time",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "disc", Value: 1, Usage: "Disc number (1-6)"},
			&cli.UintFlag{Name: "track", Value: 1, Usage: "Track number (1-99)"},
			&cli.StringFlag{Name: "time", Value: "0:00", Usage: "Play time as m:ss"},
			&cli.BoolFlag{Name: "scan", Usage: "Scan indicator on"},
			&cli.BoolFlag{Name: "random", Usage: "Random indicator on"},
			&cli.BoolFlag{Name: "idle", Usage: "Print the idle frame instead"},
		},
		Action: frameAction,
	}
}

func frameAction(c *cli.Context) error {
	disc := c.Uint("disc")
	track := c.Uint("track")
	if disc < 1 || disc > 6 {
		return cli.Exit(fmt.Sprintf("disc %d out of range 1-6", disc), 2)
	}
	if track < 1 || track > 99 {
		return cli.Exit(fmt.Sprintf("track %d out of range 1-99", track), 2)
	}

	var f cdc.Frame
	if c.Bool("idle") {
		f = cdc.IdleFrame(uint8(disc), uint8(track))
	} else {
		mm, ss, err := parsePlayTime(c.String("time"))
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		mode := cdc.ModeOf(c.Bool("scan"), c.Bool("random")).Byte()
		f = cdc.PlayFrame(uint8(disc), uint8(track), mm, ss, mode)
	}

	fmt.Fprintf(c.App.Writer, "%s  %s\n", f, f.Describe())
	return nil
}

// parsePlayTime parses "m:ss" within 0:00..99:59.
func parsePlayTime(s string) (uint8, uint8, error) {
	m, sec, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q: want m:ss", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 99 {
		return 0, 0, fmt.Errorf("time %q: minutes must be 0-99", s)
	}
	ss, err := strconv.Atoi(sec)
	if err != nil || ss < 0 || ss > 59 {
		return 0, 0, fmt.Errorf("time %q: seconds must be 0-59", s)
	}
	return uint8(mm), uint8(ss), nil
}
