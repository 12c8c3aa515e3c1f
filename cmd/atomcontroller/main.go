package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-atomcontroller/internal/config"
	"github.com/coreman2200/funtimes-atomcontroller/internal/controller"
	"github.com/coreman2200/funtimes-atomcontroller/internal/input"
	"github.com/coreman2200/funtimes-atomcontroller/internal/link"
	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
	"github.com/coreman2200/funtimes-atomcontroller/internal/preview"
	"github.com/coreman2200/funtimes-atomcontroller/internal/radio"
)

func main() {
	// ---- Flags (override config.yaml when given) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		peer       = flag.String("peer", "", "wireless peer address, e.g. 24:0a:c4:12:34:56")
		baud       = flag.Int("baud", 0, "serial baud rate")
		serialPort = flag.String("serial", "", "serial port for the wired line (empty: none)")
		matrixDrv  = flag.String("matrix", "", "matrix driver: spi | console | none")
		radioDrv   = flag.String("radio", "", "radio driver: sim | udp")
		gateway    = flag.String("gateway", "", "ESP-NOW gateway host:port for -radio udp")
		previewAt  = flag.String("preview", "", "preview HTTP listen address (empty: off)")
		logLevel   = flag.String("log-level", "", "trace | debug | info | warn | error")
		save       = flag.Bool("save", false, "write the effective config to -config and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config: defaults < config.yaml < flags ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using defaults")
		cfg = config.Default()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "peer":
			cfg.PeerAddress = *peer
		case "baud":
			cfg.BaudRate = *baud
		case "serial":
			cfg.SerialPort = *serialPort
		case "matrix":
			cfg.Matrix.Driver = *matrixDrv
		case "radio":
			cfg.Radio.Driver = *radioDrv
		case "gateway":
			cfg.Radio.Gateway = *gateway
		case "preview":
			cfg.Preview.Addr = *previewAt
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if *save {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("save config")
		}
		log.Info().Str("path", *configPath).Msg("config saved")
		return
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("bad log level; using info")
	} else {
		zerolog.SetGlobalLevel(lvl)
	}
	if err := run(log.Logger, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
}

// run wires the devices and drives the controller until SIGINT or SIGTERM.
// Every device it opened is released on return.
func run(logger zerolog.Logger, cfg *config.Config) error {
	peerAddr, err := cfg.Peer()
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	// ---- Matrix (+ preview) ----
	out, err := matrix.Open(logger, cfg.Matrix.Driver, cfg.Matrix.SPIDev)
	if err != nil {
		return fmt.Errorf("matrix %s: %w", cfg.Matrix.Driver, err)
	}
	defer out.Close()

	var drawer display.Drawer = out
	if cfg.Preview.Addr != "" {
		hub := preview.New(logger)
		hub.Start(cfg.Preview.Addr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := hub.Shutdown(sctx); err != nil {
				logger.Error().Err(err).Msg("preview shutdown")
			}
		}()
		drawer = matrix.Tee(out, hub)
	}
	renderer := matrix.NewRenderer(logger, matrix.New(cfg.Matrix.Brightness), drawer)

	// ---- Inputs ----
	poller, err := input.Open(cfg.Pins)
	if err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	defer poller.Halt()

	// ---- Wired line ----
	var wire io.Writer
	if cfg.SerialPort != "" {
		port, err := link.OpenSerial(cfg.SerialPort, cfg.BaudRate)
		if err != nil {
			logger.Warn().Err(err).Str("port", cfg.SerialPort).Msg("serial unavailable; wireless only")
		} else {
			defer port.Close()
			wire = port
		}
	}

	// ---- Radio ----
	var rf radio.Radio
	switch cfg.Radio.Driver {
	case "udp":
		u, err := radio.DialUDP(logger, cfg.Radio.Gateway, time.Duration(cfg.Radio.AckTimeoutMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("radio: %w", err)
		}
		rf = u
	default:
		rf = radio.NewSim(time.Duration(cfg.Radio.SimDelayMs)*time.Millisecond, cfg.Radio.SimFailEvery)
	}
	defer rf.Close()

	tx := link.New(logger, wire, rf, peerAddr)
	ctl := controller.New(logger, poller, tx, renderer, time.Duration(cfg.PollIntervalMs)*time.Millisecond)
	if err := ctl.Begin(); err != nil {
		return fmt.Errorf("peer %s: %w", peerAddr, err)
	}
	logger.Info().
		Str("peer", peerAddr.String()).
		Int("baud", cfg.BaudRate).
		Str("matrix", out.String()).
		Bool("hardware", out.Hardware).
		Str("radio", cfg.Radio.Driver).
		Msg("controller started")

	// ---- Run until SIGINT/SIGTERM ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := ctl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("run")
	}

	st, c := ctl.Stats(), tx.Counters()
	logger.Info().
		Uint64("cycles", st.Cycles).
		Uint64("sends", st.Sends).
		Uint64("delivered", c.Delivered).
		Uint64("failed", c.Failed).
		Str("status", tx.Status().String()).
		Msg("shutting down")
	return nil
}
