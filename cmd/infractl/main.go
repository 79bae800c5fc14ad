// Package main is the entry point for the infractl CLI.
//
// infractl deploys an application environment in two phases: Terraform
// provisions the infrastructure and Ansible configures the hosts, with the
// Ansible inventory generated from the Terraform outputs in between. Every
// mutating run is preceded by a state snapshot and followed by
// verification checks.
//
// For detailed usage information, run:
//
//	infractl --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/infractl/cmd/infractl/commands"
	"github.com/imamik/infractl/internal/deployment"
)

// Version information set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return deployment.ExitCode(err)
	}
	return deployment.ExitOK
}
