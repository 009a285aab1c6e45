package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var hydraRate float64

var hydraCmd = &cobra.Command{
	Use:   "hydra <address>",
	Short: "Opens as many connections as possible",
	Long: `Opens connections in a loop and retains every handle, keeping the
sockets live, until the process or the OS refuses. Exercises the
server's slow-connect sweep: none of the connections ever
authenticates.

Example:
  pandora hydra 127.0.0.1:6969
  pandora hydra --rate 50 127.0.0.1:6969`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		limiter := newPaceLimiter(hydraRate)

		// Handles are retained on purpose; dropping one would let the
		// OS reclaim the socket.
		var conns []net.Conn
		for {
			if err := limiter.Wait(context.Background()); err != nil {
				return err
			}
			conn, err := net.Dial("tcp", address)
			if err != nil {
				return fmt.Errorf("could not create another connection to %s (opened %d): %w",
					address, len(conns), err)
			}
			conns = append(conns, conn)
			logger.Info().
				Str("local_addr", conn.LocalAddr().String()).
				Int("open", len(conns)).
				Msg("Connected")
		}
	},
}

// newPaceLimiter builds the connection pacer; a non-positive rate means
// unpaced, which the token bucket expresses as an infinite limit.
func newPaceLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

func init() {
	hydraCmd.Flags().Float64Var(&hydraRate, "rate", 0,
		"connection attempts per second (0 = as fast as possible)")
}
