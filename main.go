// Package main is the entry point for the tiktok-crawler executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/trendlens/tiktok-crawler/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
