package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"

	"dev.acmcsuf.com/ambientd"
	"dev.acmcsuf.com/ambientd/config"
	"dev.acmcsuf.com/ambientd/fader"
	"dev.acmcsuf.com/ambientd/pwm"
)

//go:embed frontend
var frontendFS embed.FS
var frontendFilesFS, _ = fs.Sub(frontendFS, "frontend")

var (
	configPath    = "ambient.cfg"
	httpAddr      = ""
	httpAdminAddr = "127.0.0.1:3547"
	backendName   = "sysfs"
	pwmChip       = ""
	ws281xPixels  = 30
	verbose       = false
)

func init() {
	pflag.StringVarP(&configPath, "config", "c", configPath, "path to the key=value config file")
	pflag.StringVarP(&httpAddr, "http-addr", "a", httpAddr, "HTTP server address, overrides listen_addr")
	pflag.StringVarP(&httpAdminAddr, "http-admin-addr", "A", httpAdminAddr, "HTTP admin server address")
	pflag.StringVarP(&backendName, "backend", "b", backendName, "PWM backend: sysfs, gpiod, ws281x or memory")
	pflag.StringVar(&pwmChip, "pwm-chip", pwmChip, "sysfs pwmchip directory, found automatically if empty")
	pflag.IntVar(&ws281xPixels, "ws281x-pixels", ws281xPixels, "number of pixels on the ws281x strip")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

const frameRate = 20

// defaults are written to the config file on startup when missing.
var defaults = map[string]string{
	"listen_addr":          "0.0.0.0:3546",
	"color_range":          "20000",
	"tick_rate":            "200",
	"continuous_threshold": "0.025",
	"static_threshold":     "0",
	"protection_window":    "180",
	"continuous_frequency": "400",
	"static_frequency":     "2000",
	"pwm_channel_r":        "0",
	"pwm_channel_g":        "1",
	"pwm_channel_b":        "2",
	"gpio_r":               "17",
	"gpio_g":               "22",
	"gpio_b":               "24",
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05 PM", // extended time.Kitchen
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	store, err := config.Open(configPath)
	if err != nil {
		return err
	}

	if err := store.Defaults(defaults); err != nil {
		return fmt.Errorf("failed to seed config %q: %v", configPath, err)
	}

	backend, err := openBackend(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %v", backendName, err)
	}

	pins := backendPins(store, backendName)

	driver := pwm.NewController(backend, pins)
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn(
				"failed to release PWM backend",
				"error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := ambientd.NewMetrics(registry)

	controller := ambientd.NewController(ambientd.ControllerOpts{
		Driver:  driver,
		Config:  func() fader.Config { return faderConfig(store) },
		Logger:  logger.With("component", "controller"),
		Metrics: metrics,
	})

	server := ambientd.NewServer(ambientd.ServerOpts{
		Controller: controller,
		Config:     store,
		Static:     frontendFilesFS,
		Logger:     logger.With("component", "server"),
		Metrics:    metrics,
		FrameRate:  frameRate,
	})

	addr := httpAddr
	if addr == "" {
		addr = store.String("listen_addr", defaults["listen_addr"])
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return controller.Run(ctx)
	})

	errg.Go(func() error {
		logger.Info(
			"starting public HTTP server",
			"addr", addr,
			"backend", backendName,
			"pins", pins)

		return hserve.ListenAndServe(ctx, addr, server)
	})

	errg.Go(func() error {
		admin := newAdminHandler(server, controller, registry)

		logger.Info(
			"starting admin HTTP server",
			"addr", httpAdminAddr)

		return hserve.ListenAndServe(ctx, httpAdminAddr, admin)
	})

	return errg.Wait()
}

func openBackend(ctx context.Context, logger *slog.Logger) (pwm.Backend, error) {
	switch backendName {
	case "sysfs":
		b, err := pwm.OpenSysfs(pwmChip)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "gpiod":
		return pwm.OpenGPIOD("ambientd"), nil
	case "ws281x":
		return newWS281xBackend(ctx, ws281xPixels, logger.With("component", "ws281x"))
	case "memory":
		return pwm.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backendName)
	}
}

// backendPins maps the color channels to pins of the named backend. sysfs pins
// are channel numbers of one pwmchip, gpiod pins are BCM line offsets, and the
// ws281x and memory backends only know pins 0 to 2.
func backendPins(store *config.Store, backend string) pwm.Pins {
	switch backend {
	case "sysfs":
		return pwm.Pins{
			store.Int("pwm_channel_r", 0),
			store.Int("pwm_channel_g", 1),
			store.Int("pwm_channel_b", 2),
		}
	case "gpiod":
		return pwm.Pins{
			store.Int("gpio_r", 17),
			store.Int("gpio_g", 22),
			store.Int("gpio_b", 24),
		}
	default:
		return pwm.Pins{0, 1, 2}
	}
}

// faderConfig reads the fade engine tunables. It is called on every engine
// start so that POST /config followed by /restart takes effect.
func faderConfig(store *config.Store) fader.Config {
	def := fader.DefaultConfig()
	return fader.Config{
		Range:               store.Int("color_range", def.Range),
		TickRate:            store.Int("tick_rate", def.TickRate),
		ContinuousThreshold: store.Float("continuous_threshold", def.ContinuousThreshold),
		StaticThreshold:     store.Float("static_threshold", def.StaticThreshold),
		ProtectionWindow:    store.Duration("protection_window", def.ProtectionWindow),
		ContinuousFrequency: store.Int("continuous_frequency", def.ContinuousFrequency),
		StaticFrequency:     store.Int("static_frequency", def.StaticFrequency),
	}
}
