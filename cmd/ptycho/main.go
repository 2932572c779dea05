package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/coreman2200/funtimes-ptycho/internal/app"
	"github.com/coreman2200/funtimes-ptycho/internal/config"
	"github.com/coreman2200/funtimes-ptycho/internal/emitter"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pins"
	"github.com/coreman2200/funtimes-ptycho/internal/preview"
	"github.com/coreman2200/funtimes-ptycho/internal/selftest"
	"github.com/coreman2200/funtimes-ptycho/internal/serialio"
	"github.com/coreman2200/funtimes-ptycho/internal/ws"
)

func main() {
	// ---- Flags (config.yaml holds everything else) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		simOnly    = flag.Bool("sim-only", false, "force the simulated panel (no GPIO)")
		patternArg = flag.String("pattern", "", "override pattern.kind: rings | center | spiral | grid")
		selfTest   = flag.String("selftest", "", "run one wiring check and exit: index_sweep | rgb_channels | row_sweep | corners")
		addr       = flag.String("addr", "", "override http.addr")
		writeCfg   = flag.String("write-config", "", "write the effective config (file + flags) to this path and exit")
	)
	flag.Parse()

	// ---- Config ----
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.Default()
	}
	if *simOnly {
		cfg.Pins.Backend = pins.BackendSim
	}
	if *patternArg != "" {
		cfg.Pattern.Kind = *patternArg
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	// ---- Logging ----
	// stderr only: stdout carries the host protocol when no serial device is set.
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	if loadErr != nil {
		log.Warn().Err(loadErr).Str("path", *configPath).Msg("config load failed; using defaults")
	}

	if *writeCfg != "" {
		if err := writeConfig(*writeCfg, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *writeCfg).Msg("write config failed")
		}
		log.Info().Str("path", *writeCfg).Msg("config written")
		return
	}

	if err := run(cfg, *selfTest); err != nil {
		log.Fatal().Err(err).Msg("ptycho stopped")
	}
}

func run(cfg *config.Config, selfTest string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	geo := matrix.Geometry{Width: cfg.Matrix.Width, Height: cfg.Matrix.Height}

	// ---- Lines ----
	set, err := pins.Open(cfg.Pins.Backend, cfg.Pins.Lines, cfg.Pins.Chip, geo, log.Logger.With().Str("component", "pins").Logger())
	if err != nil {
		return err
	}
	defer set.Close()

	// ---- Host link ----
	var link *serialio.Stream
	if cfg.Serial.Device != "" {
		link, err = serialio.Open(serialio.Config{Device: cfg.Serial.Device, Baud: cfg.Serial.Baud, Timeout: cfg.Serial.Timeout},
			log.Logger.With().Str("component", "serialio").Logger())
		if err != nil {
			return err
		}
	} else {
		link = serialio.Stdio(cfg.Serial.Timeout, log.Logger.With().Str("component", "serialio").Logger())
	}
	defer link.Close()

	hw := app.HW{Pins: set, Link: link}
	if cfg.HTTP.Addr != "" {
		hw.Hub = ws.NewHub(log.Logger.With().Str("component", "ws").Logger())
	}
	if cfg.MQTT.Broker != "" {
		hw.Events = emitter.NewMQTTEmitter(emitter.Config{Broker: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID, Topic: cfg.MQTT.Topic},
			log.Logger.With().Str("component", "mqtt").Logger())
	}
	if cfg.Vis.Preview && set.Emulator != nil {
		if cfg.Serial.Device == "" {
			log.Warn().Msg("preview needs stdout; set serial.device to use it")
		} else {
			hw.Preview = preview.New(geo.Width)
			defer hw.Preview.Halt()
		}
	}

	core, err := app.InitCore(cfg, hw, log.Logger)
	if err != nil {
		return err
	}

	if selfTest != "" {
		k, err := selftest.ParseKind(selfTest)
		if err != nil {
			return err
		}
		return runSelfTest(core, k, cfg.Sequence.Tick)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Serial.Device != "" {
		g.Go(func() error { return link.Run(ctx) })
	} else {
		// A read on stdin cannot be interrupted; the pump is left behind on
		// shutdown.
		go func() {
			if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("stdin pump stopped")
			}
		}()
	}
	g.Go(func() error { return core.Run(ctx) })

	if hw.Events != nil {
		g.Go(func() error {
			if err := hw.Events.Connect(ctx); err != nil {
				log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt unavailable; events disabled")
				return nil
			}
			return hw.Events.Run(ctx)
		})
	}

	if hw.Hub != nil {
		srv := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      withCORS(hw.Hub.Handler()),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTP.Addr).Str("backend", cfg.Pins.Backend).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	err = g.Wait()
	log.Info().Msg("shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writeConfig saves cfg after checking it would start.
func writeConfig(path string, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

// runSelfTest steps a wiring check to completion, one LED per tick.
func runSelfTest(core *app.Core, k selftest.Kind, tick time.Duration) error {
	log.Info().Str("test", string(k)).Msg("running self-test")
	core.RunSelfTest(k)
	for core.SelfTesting() {
		core.Tick()
		time.Sleep(tick)
	}
	return nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
