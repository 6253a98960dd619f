// Command agentctl is the operator CLI for inspecting and cancelling background jobs and
// tasks and for querying the audit log (SPEC_FULL.md §12). Grounded on the teacher's
// cmd/sett/commands and cmd/holt/commands root-command shape: a single cobra.Command tree
// with a persistent --config flag.
package main

import (
	"os"

	"github.com/opencopilot/agentcore/cmd/agentctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
