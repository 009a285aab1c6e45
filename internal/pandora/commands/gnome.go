package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
)

var gnomeRate float64

var gnomeCmd = &cobra.Command{
	Use:   "gnome <address>",
	Short: "Keeps opening and closing connections",
	Long: `Connects and immediately disconnects in a tight loop without
retaining handles. Exercises the accept path and the connect/disconnect
bookkeeping.

Example:
  pandora gnome 127.0.0.1:6969
  pandora gnome --rate 100 127.0.0.1:6969`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		limiter := newPaceLimiter(gnomeRate)

		for {
			if err := limiter.Wait(context.Background()); err != nil {
				return err
			}
			conn, err := net.Dial("tcp", address)
			if err != nil {
				return fmt.Errorf("could not create another connection: %w", err)
			}
			logger.Info().
				Str("local_addr", conn.LocalAddr().String()).
				Msg("Connected. Disconnecting...")
			conn.Close()
		}
	},
}

func init() {
	gnomeCmd.Flags().Float64Var(&gnomeRate, "rate", 0,
		"connection attempts per second (0 = as fast as possible)")
}
