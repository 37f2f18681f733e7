package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env"
	"github.com/gofrs/uuid/v5"
	"github.com/kbinani/screenshot"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"dev.acmcsuf.com/ambientd/feed"
	"dev.acmcsuf.com/ambientd/session"
)

type feedConfig struct {
	Server          string `env:"AMBIENT_SERVER" envDefault:"http://127.0.0.1:3546"`
	ChecksPerSecond int    `env:"CHECKS_PER_SECOND" envDefault:"3"`
	ColorRange      int    `env:"COLOR_RANGE" envDefault:"20000"`
	Lines           int    `env:"LINES" envDefault:"3"`
	Columns         int    `env:"COLUMNS" envDefault:"50"`
	Smoothing       int    `env:"SMOOTHING" envDefault:"4"`
	Saturate        bool   `env:"INCREASE_SATURATION" envDefault:"true"`
	Normalize       bool   `env:"NORMALIZE" envDefault:"false"`
	ScreenNumber    int    `env:"SCREEN_NUMBER" envDefault:"0"`
	Verbose         bool   `env:"VERBOSE" envDefault:"false"`
}

func main() {
	log.SetFlags(0)

	var cfg feedConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalln("failed to parse environment variables:", err)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
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

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg feedConfig, logger *slog.Logger) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate feed ID: %v", err)
	}

	client := &feed.Client{
		BaseURL: cfg.Server,
		ID:      id.String(),
		Rate:    max(1, cfg.ChecksPerSecond),
	}

	sampler := feed.NewSampler(feed.SamplerConfig{
		Lines:     cfg.Lines,
		Columns:   cfg.Columns,
		Range:     cfg.ColorRange,
		Smoothing: cfg.Smoothing,
		Saturate:  cfg.Saturate,
		Normalize: cfg.Normalize,
	})

	logger.Info(
		"starting screen feed",
		"server", cfg.Server,
		"id", client.ID,
		"cps", client.Rate,
		"screen", cfg.ScreenNumber)

	ticker := time.NewTicker(time.Second / time.Duration(client.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		img, err := screenshot.CaptureDisplay(cfg.ScreenNumber)
		if err != nil {
			logger.Error(
				"failed to capture screen",
				"error", err)
			continue
		}

		c := sampler.Next(img)
		logger.Debug(
			"sending color",
			"color", c)

		if err := client.Send(ctx, c); err != nil {
			if errors.Is(err, session.ErrFenced) {
				logger.Info(
					"another source took over, stopping")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn(
				"failed to send color",
				"error", err)
		}
	}
}
