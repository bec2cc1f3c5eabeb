package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"exokern/kernel"
)

// panicHandler reports a user panic on the console the way the user library
// would print one, and logs the goroutine stack at debug level.
func panicHandler(log zerolog.Logger, out io.Writer) func(kernel.PanicInfo) {
	return func(info kernel.PanicInfo) {
		fmt.Fprintf(out, "[%v] user panic: %v\n", info.EnvID, info.Value)
		if len(info.Stack) == 0 || log.GetLevel() > zerolog.DebugLevel {
			return
		}
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			log.Debug().Stringer("env", info.EnvID).Msg(line)
		}
	}
}
