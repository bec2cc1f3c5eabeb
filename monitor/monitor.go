// Package monitor is the kernel monitor: a line-oriented command console for
// inspecting and steering a running kernel.
package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/shlex"

	"exokern/internal/buildinfo"
	"exokern/kernel"
)

// MaxArgs is the most arguments a command line may have.
const MaxArgs = 16

const prompt = "K> "

var errExit = errors.New("exit")

// Kernel is the part of the kernel the monitor drives.
type Kernel interface {
	Stats() kernel.Stats
	Envs() []kernel.EnvInfo
	Destroy(id kernel.EnvID) error
}

// Config wires a monitor to its kernel.
type Config struct {
	Kernel Kernel
	Out    io.Writer
	// Spawn starts the named program, if set.
	Spawn func(name string) (kernel.EnvID, error)
	// Programs lists the names Spawn accepts.
	Programs []string
}

type command struct {
	name string
	desc string
	fn   func(m *Monitor, args []string) error
}

// Monitor runs commands against a kernel.
type Monitor struct {
	cfg  Config
	w    io.Writer
	cmds []command
}

func New(cfg Config) *Monitor {
	m := &Monitor{cfg: cfg, w: cfg.Out}
	if m.w == nil {
		m.w = io.Discard
	}
	m.cmds = []command{
		{"help", "Display this list of commands", (*Monitor).help},
		{"kerninfo", "Display information about the kernel", (*Monitor).kerninfo},
		{"envs", "List environments", (*Monitor).envs},
		{"mem", "Display physical memory usage", (*Monitor).mem},
		{"kill", "Destroy an environment: kill <envid>", (*Monitor).kill},
		{"run", "Start a program: run <name>", (*Monitor).run},
		{"exit", "Leave the monitor", func(*Monitor, []string) error { return errExit }},
	}
	return m
}

// Run reads commands from r until EOF or exit.
func (m *Monitor) Run(r io.Reader) error {
	fmt.Fprintf(m.w, "Welcome to the exokern kernel monitor!\n")
	fmt.Fprintf(m.w, "Type 'help' for a list of commands.\n")

	sc := bufio.NewScanner(r)
	for {
		fmt.Fprint(m.w, prompt)
		if !sc.Scan() {
			return sc.Err()
		}
		if err := m.Exec(sc.Text()); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

// Exec runs one command line. Command failures are reported on the output;
// only exit is returned as an error.
func (m *Monitor) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(m.w, "parse error: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	if len(args) > MaxArgs {
		fmt.Fprintf(m.w, "Too many arguments (max %d)\n", MaxArgs)
		return nil
	}
	for _, c := range m.cmds {
		if c.name != args[0] {
			continue
		}
		err := c.fn(m, args)
		if err != nil && !errors.Is(err, errExit) {
			fmt.Fprintf(m.w, "%s: %v\n", c.name, err)
			return nil
		}
		return err
	}
	fmt.Fprintf(m.w, "Unknown command '%s'\n", args[0])
	return nil
}

func (m *Monitor) help([]string) error {
	for _, c := range m.cmds {
		fmt.Fprintf(m.w, "%s - %s\n", c.name, c.desc)
	}
	return nil
}

func (m *Monitor) kerninfo([]string) error {
	fmt.Fprintln(m.w, buildinfo.String())
	if m.cfg.Kernel == nil {
		return nil
	}
	s := m.cfg.Kernel.Stats()
	fmt.Fprintf(m.w, "  cpus    %d (%d halted)\n", s.CPUs, s.HaltedCPUs)
	fmt.Fprintf(m.w, "  envs    %d slots\n", s.EnvSlots)
	fmt.Fprintf(m.w, "  uptime  %v (%d ticks)\n", s.Uptime, s.Ticks)
	return nil
}

func (m *Monitor) envs([]string) error {
	if m.cfg.Kernel == nil {
		return errors.New("no kernel")
	}
	tw := tabwriter.NewWriter(m.w, 0, 8, 1, ' ', 0)
	fmt.Fprintln(tw, "ENVID\tPARENT\tTYPE\tSTATUS\tCPU\tIMAGE\tRUNS\tFAULTS\tPAGES")
	for _, e := range m.cfg.Kernel.Envs() {
		cpu := "-"
		if e.CPU >= 0 {
			cpu = strconv.Itoa(e.CPU)
		}
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%s\t%s\t%d\t%d\t%d\n",
			e.ID, e.Parent, e.Type, e.Status, cpu, e.Image, e.Runs, e.Faults, e.Pages)
	}
	return tw.Flush()
}

func (m *Monitor) mem([]string) error {
	if m.cfg.Kernel == nil {
		return errors.New("no kernel")
	}
	s := m.cfg.Kernel.Stats()
	used := s.PhysPages - s.FreePages
	fmt.Fprintf(m.w, "physical pages: %d total, %d free, %d in use (%dKB)\n",
		s.PhysPages, s.FreePages, used, used*4)
	return nil
}

func (m *Monitor) kill(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: kill <envid>")
	}
	if m.cfg.Kernel == nil {
		return errors.New("no kernel")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 32)
	if err != nil {
		return fmt.Errorf("bad envid %q", args[1])
	}
	return m.cfg.Kernel.Destroy(kernel.EnvID(v))
}

func (m *Monitor) run(args []string) error {
	if m.cfg.Spawn == nil {
		return errors.New("not supported")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: run <name>; programs: %s", strings.Join(m.cfg.Programs, " "))
	}
	id, err := m.cfg.Spawn(args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(m.w, "started %s as %v\n", args[1], id)
	return nil
}
