package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/eshaffer321/invoice-ledger/internal/cli"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/config"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	flags, err := cli.ParseServeFlags(os.Args[1:], os.Stderr)
	if err != nil {
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

	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}
