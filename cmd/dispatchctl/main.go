package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Dispatch engine operator CLI",
		Long: `dispatchctl runs the dispatch pipeline locally, mints caller tokens for
transports, checks rule table documents before they are deployed and lists
scheduled jobs that are due.

Backends and secrets come from the same environment variables as the API
server (LEDGER_BACKEND, POSTGRES_DSN, AUTH_JWT_SECRET, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(processCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(jobsCmd())
	return root
}
