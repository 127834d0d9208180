package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shaunagostinho/cdc-bridge/internal/bridge"
	"github.com/shaunagostinho/cdc-bridge/internal/bt"
	"github.com/shaunagostinho/cdc-bridge/internal/cdc"
	"github.com/shaunagostinho/cdc-bridge/internal/events"
	"github.com/shaunagostinho/cdc-bridge/internal/log"
	"github.com/shaunagostinho/cdc-bridge/internal/recorder"
	"github.com/shaunagostinho/cdc-bridge/internal/server"
)

// Loop periods of the cooperative components.
const (
	scanPeriod   = 10 * time.Millisecond
	btPeriod     = 10 * time.Millisecond
	bridgePeriod = 50 * time.Millisecond
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: server.DefaultConfigPath,
			},
			&cli.BoolFlag{
				Name:  "demo",
				Usage: "Run with a simulated BT module and head unit",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Override listen address (e.g. :8080)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log level (info, debug, verbose)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	hub := server.NewHub()
	logger, err := log.New("info", os.Stderr, hub.LogHook)
	if err != nil {
		return err
	}
	defer logger.Sync()
	mainLog := logger.Named("main")
	mainLog.Infof("cdcbridge %s starting", version)

	cfg := server.LoadConfig(c.String("config"), logger.Named("config"))
	if c.Bool("demo") {
		cfg.BT.Type = "demo"
		cfg.CDC.Type = "demo"
	}
	if v := c.String("listen"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		mainLog.Warnf("%v, keeping info", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Head unit side
	bus, err := openBus(cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer bus.Close()
	emu := cdc.NewEmulator(bus, logger.Named("cdc"))

	dec := cdc.NewDecoder()
	line, demoLine, err := openLine(cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer line.Close()

	// Bluetooth side
	var port bt.Port
	switch cfg.BT.Type {
	case "serial":
		port = bt.NewSerialPort(bt.SerialConfig{
			PortPath: cfg.BT.PortPath,
			BaudRate: cfg.BT.BaudRate,
		})
	default:
		port = bt.NewDemoPort()
	}
	btLog := logger.Named("bt")
	mod := bt.NewModule(port, emu, cfg.BTModule(), btLog)
	defer mod.Close()

	// Try connecting with exponential backoff (non-blocking, the changer
	// emulation starts regardless)
	go connectWithRetry(ctx, btLog, port, 10)

	// Optional event fan-out
	var sink bridge.EventSink
	if cfg.Events.URL != "" {
		pub, err := events.New(cfg.Events, logger.Named("events"))
		if err != nil {
			mainLog.Warnf("events disabled: %v", err)
		} else {
			defer pub.Close()
			go pub.Run(ctx)
			sink = pub
			mainLog.Infof("publishing events to %s", pub.Channel())
		}
	}

	br := bridge.New(emu, mod, sink, cfg.BridgeTiming(), logger.Named("bridge"))
	mod.OnChange(br.OnStateChange)
	mod.Parser().OnTrackInfo(br.OnTrackInfo)
	scanner := cdc.NewScanner(dec, br.HandleButton, logger.Named("decoder"))

	rec := recorder.New(cfg.Recorder, logger.Named("recorder"))
	go rec.Run(ctx, func() recorder.Sample {
		return sample(emu, mod)
	})

	go emu.Run(ctx, cfg.Tick())
	go line.Run(ctx, dec)
	go scanner.Run(ctx, scanPeriod)
	go mod.Run(ctx, btPeriod)
	go br.Run(ctx, bridgePeriod)

	srv := server.New(cfg, server.Deps{
		Emulator: emu,
		Scanner:  scanner,
		Decoder:  dec,
		Demo:     demoLine,
		Module:   mod,
		Bridge:   br,
		Recorder: rec,
		Hub:      hub,
	}, logger.Named("server"))
	if err := srv.Run(ctx); err != nil {
		mainLog.Errorf("server exited: %v", err)
		return cli.Exit("", 1)
	}
	mainLog.Infof("shut down")
	return nil
}

func openBus(cfg *server.Config, logger *log.Logger) (cdc.Bus, error) {
	if cfg.CDC.Type != "spi" {
		return cdc.NewLogBus(logger.Named("bus")), nil
	}
	bus, err := cdc.OpenSPI(cfg.CDC.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("head unit bus: %w", err)
	}
	return bus, nil
}

// openLine returns the DataOut source. The demo line is also returned
// separately so the API can inject buttons into it.
func openLine(cfg *server.Config) (cdc.Line, *cdc.DemoLine, error) {
	if cfg.CDC.Type != "spi" {
		demo := cdc.NewDemoLine()
		return demo, demo, nil
	}
	line, err := cdc.OpenDataOut(cfg.CDC.DataOutPin)
	if err != nil {
		return nil, nil, fmt.Errorf("dataout line: %w", err)
	}
	return line, nil, nil
}

func sample(emu *cdc.Emulator, mod *bt.Module) recorder.Sample {
	st := emu.Status()
	rep := mod.Report()
	return recorder.Sample{
		Conn:      mod.State().State().String(),
		Disc:      st.Disc,
		Track:     st.Track,
		Minutes:   st.Minutes,
		Seconds:   st.Seconds,
		PlayState: st.State.String(),
		Title:     rep.Track.Title,
		Artist:    rep.Track.Artist,
	}
}

// connectable is satisfied by bt.Port.
type connectable interface {
	Name() string
	Connect() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, logger *log.Logger, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.Connect()
		if err == nil {
			logger.Infof("%s connected (attempt %d)", c.Name(), attempt+1)
			return
		}
		attempt++
		if attempt <= maxAttempts {
			logger.Warnf("connect attempt %d/%d failed: %v (retry in %v)",
				attempt, maxAttempts, err, delay)
		} else {
			logger.Warnf("connect attempt %d failed: %v (retry in %v)",
				attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
