package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"exokern/app"
	"exokern/config"
	"exokern/hal"
	"exokern/user"
)

func main() {
	var (
		path     string
		headless bool
		monitor  bool
		cpus     int
		ticks    uint64
		tick     time.Duration
		level    string
		ping     int
	)
	flag.StringVar(&path, "config", "", "TOML configuration file.")
	flag.BoolVar(&headless, "headless", true, "Run without a window.")
	flag.BoolVar(&monitor, "monitor", false, "Run the kernel monitor on the console.")
	flag.IntVar(&cpus, "cpus", 0, "Number of CPUs.")
	flag.Uint64Var(&ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run until halted).")
	flag.DurationVar(&tick, "tick", 0, "Timer tick period.")
	flag.StringVar(&level, "log-level", "", "Log level (debug, info, warn, error).")
	flag.IntVar(&ping, "ping", 0, "Send N frames into the network device and log the replies.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [program ...]\n\nprograms: %s\n\n",
			os.Args[0], strings.Join(user.Names(), " "))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Machine.Headless = headless
		case "monitor":
			cfg.Machine.Monitor = monitor
		case "cpus":
			cfg.Kernel.CPUs = cpus
		case "ticks":
			cfg.Machine.Ticks = ticks
		case "tick":
			cfg.Kernel.Tick = tick
		case "log-level":
			cfg.Log.Level = level
		case "ping":
			cfg.Boot.Ping = ping
		}
	})
	if flag.NArg() > 0 {
		cfg.Boot.Programs = flag.Args()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := newLogger(cfg.Log)
	newApp := func(h hal.HAL) func() error { return app.New(h, cfg, log) }

	if cfg.Machine.Headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err := hal.RunHeadless(ctx, newApp, hal.HeadlessConfig{
			Tick:  cfg.Kernel.Tick,
			Ticks: cfg.Machine.Ticks,
			Stdin: true,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newApp, cfg.Kernel.Tick); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Log) zerolog.Logger {
	lvl, _ := cfg.ZerologLevel()
	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
