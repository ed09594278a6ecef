// Command jsd is a terminal dashboard for a Jira Service Desk project.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/SeniorPomidorro/suptech-desk/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Stdout, os.Stderr, os.Args[1:], cli.Options{})
	stop()
	os.Exit(code)
}
