// Package commands implements the pandora stress-testing CLI.
//
// Each subcommand exercises one abuse-mitigation path of the chat
// server: dragon floods one connection with data, hydra hoards as many
// connections as the OS allows, and gnome churns through connect/close
// cycles.
package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().
	Timestamp().
	Logger()

var rootCmd = &cobra.Command{
	Use:   "pandora",
	Short: "Stress-testing toolkit for the chat server",
	Long: `pandora exercises the chat server's abuse-mitigation paths.

Commands:
  dragon - connects and floods the server with random data
  hydra  - opens as many connections as possible and keeps them
  gnome  - keeps opening and closing connections

Example:
  pandora dragon 127.0.0.1:6969`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Returns a non-nil error for unknown subcommands,
// missing arguments, and fatal I/O errors.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(dragonCmd)
	rootCmd.AddCommand(hydraCmd)
	rootCmd.AddCommand(gnomeCmd)
}
