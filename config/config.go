// Package config loads the machine's boot configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type Config struct {
	Kernel  Kernel  `toml:"kernel"`
	Log     Log     `toml:"log"`
	Machine Machine `toml:"machine"`
	Boot    Boot    `toml:"boot"`
}

type Kernel struct {
	Envs      int           `toml:"envs"`
	CPUs      int           `toml:"cpus"`
	PhysPages int           `toml:"phys_pages"`
	KernPages int           `toml:"kern_pages"`
	Tick      time.Duration `toml:"tick"`
}

type Log struct {
	Level string `toml:"level"`
	// Format is "console" or "json".
	Format string `toml:"format"`
}

type Machine struct {
	Headless bool `toml:"headless"`
	// Monitor starts the kernel monitor on the console; it then owns console
	// input.
	Monitor bool `toml:"monitor"`
	// Ticks stops a headless machine after this many ticks (0 = never).
	Ticks uint64 `toml:"ticks"`
}

type Boot struct {
	Programs []string `toml:"programs"`
	// Ping sends this many frames into the network device after boot and
	// logs the replies.
	Ping int `toml:"ping"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Kernel: Kernel{
			Envs:      1024,
			CPUs:      2,
			PhysPages: 8192,
			KernPages: 16,
			Tick:      10 * time.Millisecond,
		},
		Log:     Log{Level: "info", Format: "console"},
		Machine: Machine{Headless: true},
		Boot:    Boot{Programs: []string{"hello"}},
	}
}

// Load reads path over the defaults. Keys the file sets that Config does not
// know are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a kernel cannot boot with.
func (c Config) Validate() error {
	var errs []error
	k := c.Kernel
	if k.Envs <= 0 || k.Envs&(k.Envs-1) != 0 || k.Envs > 4096 {
		errs = append(errs, fmt.Errorf("kernel.envs %d is not a power of two up to 4096", k.Envs))
	}
	if k.CPUs <= 0 {
		errs = append(errs, fmt.Errorf("kernel.cpus %d must be positive", k.CPUs))
	}
	if k.KernPages < 0 || k.PhysPages <= k.KernPages {
		errs = append(errs, fmt.Errorf("kernel.phys_pages %d must exceed kernel.kern_pages %d", k.PhysPages, k.KernPages))
	}
	if k.Tick <= 0 {
		errs = append(errs, fmt.Errorf("kernel.tick %v must be positive", k.Tick))
	}
	if _, err := c.Log.ZerologLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	if c.Boot.Ping < 0 {
		errs = append(errs, fmt.Errorf("boot.ping %d is negative", c.Boot.Ping))
	}
	return errors.Join(errs...)
}

// ZerologLevel parses the configured log level.
func (l Log) ZerologLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
