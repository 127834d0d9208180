package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	err := app.Run(append([]string{"cdcbridge"}, args...))
	return out.String(), err
}

func TestFrameCommand(t *testing.T) {
	out, err := runApp(t, "frame", "--disc", "1", "--track", "5", "--time", "3:45")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "PLAY CD1 T5 03:45") {
		t.Errorf("output = %q", out)
	}

	out, err = runApp(t, "frame", "--idle")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "IDLE") {
		t.Errorf("idle output = %q", out)
	}
}

func TestFrameCommandRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"frame", "--disc", "7"},
		{"frame", "--track", "0"},
		{"frame", "--time", "1:60"},
		{"frame", "--time", "345"},
	} {
		if _, err := runApp(t, args...); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}

func TestParsePlayTime(t *testing.T) {
	mm, ss, err := parsePlayTime(" 99:59 ")
	if err != nil || mm != 99 || ss != 59 {
		t.Errorf("got %d:%d, %v", mm, ss, err)
	}
	if _, _, err := parsePlayTime("100:00"); err == nil {
		t.Error("100 minutes accepted")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "cdcbridge ") {
		t.Errorf("output = %q", out)
	}
}

type flakyPort struct {
	fails int
	calls int
}

func (p *flakyPort) Name() string { return "flaky" }

func (p *flakyPort) Connect() error {
	p.calls++
	if p.calls <= p.fails {
		return errors.New("no such device")
	}
	return nil
}

func TestConnectWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &flakyPort{fails: 100}
	connectWithRetry(ctx, log.Nop(), p, 3)
	if p.calls != 0 {
		t.Errorf("calls = %d after cancel, want 0", p.calls)
	}
}

func TestConnectWithRetryFirstTry(t *testing.T) {
	p := &flakyPort{}
	connectWithRetry(context.Background(), log.Nop(), p, 3)
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}
