package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/eshaffer321/invoice-ledger/internal/cli"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/config"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	flags, err := cli.ParseReconcileFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: reconcile [flags] <invoice.xml|dir>...\n%v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadOrEnv_WithPath(flags.ConfigPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := cli.RunReconcile(ctx, cfg, flags, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	if result.Counts.Failed > 0 || result.Counts.Unbalanced > 0 {
		os.Exit(1)
	}
}
