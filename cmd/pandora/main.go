// Command pandora is the stress tester for the chat server.
//
// Usage:
//
//	pandora <command> <address> [args]
//
// Commands:
//
//	dragon - connects and floods the server with random data
//	hydra  - opens as many connections as possible
//	gnome  - keeps opening and closing connections
package main

import (
	"fmt"
	"os"

	"github.com/adred-codev/chat_poc/internal/pandora/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
