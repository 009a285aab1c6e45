package commands

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const dragonBufferSize = 1024

var dragonDelay time.Duration

var dragonCmd = &cobra.Command{
	Use:   "dragon <address> [token]",
	Short: "Just connects and sends a lot of random data",
	Long: `Opens one connection and writes random 1024-byte blobs forever.

With a token argument the token is sent first, followed by a short
delay, so the flood runs against an authenticated client and exercises
the message-rate strikes instead of the auth path.

Example:
  pandora dragon 127.0.0.1:6969
  pandora dragon 127.0.0.1:6969 $(cat TOKEN)`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]

		conn, err := net.Dial("tcp", address)
		if err != nil {
			return fmt.Errorf("could not connect to %s: %w", address, err)
		}
		defer conn.Close()

		if len(args) == 2 {
			if _, err := conn.Write([]byte(args[1])); err != nil {
				return fmt.Errorf("could not send token to %s: %w", address, err)
			}
			logger.Info().Str("address", address).Msg("Token sent")
			time.Sleep(dragonDelay)
		}

		buffer := make([]byte, dragonBufferSize)
		for {
			if _, err := rand.Read(buffer); err != nil {
				return fmt.Errorf("could not generate random data: %w", err)
			}

			n, err := conn.Write(buffer)
			if err != nil {
				if peerClosed(err) {
					logger.Info().Str("address", address).Msg("Server closed the connection")
					return nil
				}
				return fmt.Errorf("could not write to %s: %w", address, err)
			}

			logger.Info().Str("address", address).Int("bytes", n).Msg("Sent")
		}
	},
}

// peerClosed reports whether a write error means the remote end shut the
// connection down, which for dragon is the expected clean outcome.
func peerClosed(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrClosedPipe)
}

func init() {
	dragonCmd.Flags().DurationVar(&dragonDelay, "delay", time.Second,
		"pause between sending the token and starting the flood")
}
