package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/ceoorcto/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("ceoorctl: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
