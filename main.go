package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soocke/can-bot-go/app"
	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/robot"
)

type flags struct {
	configPath          string
	mode                string
	algorithm           string
	headless            bool
	noMove              bool
	saveImages          string
	noBackdoorExtension bool
	shm                 string
	port                string
	baud                int
	session             time.Duration
	logLevel            string
	logFile             string
	debug               bool
}

func parseFlags(args []string) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("can-bot", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "canbot.yaml", "config file (.yaml/.yml or .json); missing file means defaults")
	fs.StringVar(&f.mode, "mode", config.ModeSim, "backend: sim or hardware")
	fs.StringVar(&f.algorithm, "algorithm", config.AlgorithmMinRect, "can detection: min-rect or blob-detector")
	fs.BoolVar(&f.headless, "headless", false, "run without the viewer window")
	fs.BoolVar(&f.noMove, "no-move", false, "perceive and annotate only; issue no motion")
	fs.StringVar(&f.saveImages, "save-images", "", "directory for per-cycle debug images")
	fs.BoolVar(&f.noBackdoorExtension, "no-backdoor-extension", false, "do not extend the back door at start")
	fs.StringVar(&f.shm, "shm", "", "simulator shared memory file")
	fs.StringVar(&f.port, "port", "", "motor controller serial port")
	fs.IntVar(&f.baud, "baud", 0, "motor controller baud rate")
	fs.DurationVar(&f.session, "session", 0, "session duration (default from config, 5m)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&f.debug, "debug", false, "enable goroutine and memory loggers")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// apply copies explicitly set flags over the loaded config.
func (f *flags) apply(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.Mode = f.mode
		case "algorithm":
			cfg.Algorithm = f.algorithm
		case "headless":
			cfg.Headless = f.headless
		case "no-move":
			cfg.NoMove = f.noMove
		case "save-images":
			cfg.SaveImagesDir = f.saveImages
		case "no-backdoor-extension":
			cfg.NoBackdoorExtension = f.noBackdoorExtension
		case "shm":
			cfg.Sim.File = f.shm
		case "port":
			cfg.Hardware.Port = f.port
		case "baud":
			cfg.Hardware.BaudRate = f.baud
		case "session":
			cfg.Loop.SessionSecs = f.session.Seconds()
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "log-file":
			cfg.LogFile = f.logFile
		case "debug":
			cfg.Debug = f.debug
		}
	})
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	boot := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	f, fs, err := parseFlags(args)
	if err != nil {
		return 2
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		boot.Error("config load failed", "path", f.configPath, "error", err)
		return 1
	}
	f.apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		boot.Error("invalid configuration", "error", err)
		return 1
	}
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		boot.Error("invalid log level", "level", cfg.LogLevel, "error", err)
		return 1
	}
	logger, closer, err := NewLogger(level, cfg.LogFile)
	if err != nil {
		boot.Error("logger setup failed", "error", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "mode", cfg.Mode, "algorithm", cfg.Algorithm, "headless", cfg.Headless, "session", cfg.Loop.Session())
	c, err := app.BuildContainer(cfg, f.configPath, logger, nil)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	rep, err := app.Run(ctx, c, cfg.Headless)
	printReport(rep)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	return 0
}

func printReport(rep robot.Report) {
	fmt.Printf("Runtime: %s\n", rep.Runtime)
	fmt.Printf("Dumped cans: %d\n", rep.Dumped)
	fmt.Printf("Held cans: %d\n", rep.Held)
	s := rep.Cycles
	fmt.Printf("Cycles: %d (mean %v, stddev %v, p50 %v, p95 %v, max %v)\n",
		s.Cycles, s.Mean.Round(time.Millisecond), s.StdDev.Round(time.Millisecond),
		s.P50.Round(time.Millisecond), s.P95.Round(time.Millisecond), s.Max.Round(time.Millisecond))
}
