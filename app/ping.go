package app

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"exokern/hal"
)

const pingTimeout = time.Second

// ping sends n frames into the machine over wire, one at a time, and logs
// each reply. It gives up on a frame after pingTimeout.
func ping(ctx context.Context, log zerolog.Logger, wire hal.Network, n int) {
	buf := make([]byte, hal.MaxPacketBytes)
	for i := 0; i < n; i++ {
		msg := []byte(fmt.Sprintf("ping %d", i))
		sent := time.Now()
		if err := wire.Send(msg); err != nil {
			log.Warn().Err(err).Int("seq", i).Msg("ping send")
			continue
		}

		timeout := time.NewTimer(pingTimeout)
	wait:
		for {
			if m, err := wire.Recv(buf); err == nil {
				ev := log.Info()
				if !bytes.Equal(buf[:m], msg) {
					ev = log.Warn()
				}
				ev.Int("seq", i).Int("bytes", m).Dur("rtt", time.Since(sent)).Msg("ping reply")
				break wait
			}
			select {
			case <-ctx.Done():
				timeout.Stop()
				return
			case <-timeout.C:
				log.Warn().Int("seq", i).Msg("ping timeout")
				break wait
			case <-wire.RxReady():
			}
		}
		timeout.Stop()
	}
}
