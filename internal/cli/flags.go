package cli

import (
	"errors"
	"flag"
	"io"
)

// ReconcileFlags are the flags of the reconcile command.
type ReconcileFlags struct {
	ConfigPath string
	Workers    int
	Source     string
	Verbose    bool
	JSON       bool
	Files      []string
}

// ParseReconcileFlags parses reconcile flags from args (without the program name).
func ParseReconcileFlags(args []string, output io.Writer) (*ReconcileFlags, error) {
	flags := &ReconcileFlags{}
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.IntVar(&flags.Workers, "workers", 0, "Documents processed concurrently (0 = default)")
	fs.StringVar(&flags.Source, "source", "cli", "Run source recorded in the processing log")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&flags.JSON, "json", false, "Print reports as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.Files = fs.Args()
	if len(flags.Files) == 0 {
		return nil, errors.New("no invoice files given")
	}
	if flags.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	return flags, nil
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses serve flags from args (without the program name).
func ParseServeFlags(args []string, output io.Writer) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}
