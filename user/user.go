// Package user holds the sample programs the kernel boots.
package user

import (
	"fmt"
	"sort"

	"exokern/kernel"
)

// Program is a sample program: a builder for a fresh image and the type of
// environment it runs as.
type Program struct {
	Build func() *kernel.Image
	Type  kernel.Type
}

var programs = map[string]Program{
	"hello":      {Build: Hello},
	"pingpong":   {Build: PingPong},
	"primes":     {Build: Primes},
	"forktree":   {Build: ForkTree},
	"faultdie":   {Build: FaultDie},
	"faultalloc": {Build: FaultAlloc},
	"divzero":    {Build: DivZero},
	"divtrap":    {Build: DivTrap},
	"dumbfork":   {Build: DumbFork},
	"spin":       {Build: Spin},
	"yield":      {Build: YieldLoop},
	"echo":       {Build: Echo, Type: kernel.System},
}

// Lookup returns the program called name.
func Lookup(name string) (Program, error) {
	prog, ok := programs[name]
	if !ok {
		return Program{}, fmt.Errorf("user: no program %q", name)
	}
	return prog, nil
}

// Names lists the available programs.
func Names() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// addr returns the text address of an entry point the program registered.
func addr(p *kernel.Proc, name string) uint32 {
	a, ok := p.Image().Addr(name)
	if !ok {
		panic(fmt.Sprintf("%s: no entry point %q", p.Image().Name(), name))
	}
	return a
}
