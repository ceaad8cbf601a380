// Command pnet runs echo servers and interactive clients over the session
// framework.
//
// Usage:
//
//	pnet serve   [flags]         Run an echo server
//	pnet connect [flags] [addr]  Open an interactive session
//	pnet browse  [flags]         List servers advertised over mDNS
//
// Common flags:
//
//	-c, --config string       YAML or TOML configuration file
//	-t, --transport string    Transport engine: tcp, websocket (default "tcp")
//	-a, --address string      Listen or dial address
//	    --secret string       Pre-shared secret enabling encryption
//	    --reliability string  Default reliability of channel 0
//	    --tls                 Enable TLS
//	    --log-level string    Log level: debug, info, warn, error (default "info")
//	    --log-file string     Write protocol events to a CBOR file
//
// Flags given on the command line override values from the config file.
//
// Examples:
//
//	# Echo server advertising itself on the local network
//	pnet serve -a 0.0.0.0:7400 --advertise kitchen
//
//	# Interactive client with channel 7 opened on connect
//	pnet connect -a 127.0.0.1:7400 --channel 7:reliable
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
)

// version is overridable at link time.
var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "pnet: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, rest, stdout)
	case "connect":
		return runConnect(ctx, rest, stdout)
	case "browse":
		return runBrowse(ctx, rest, stdout)
	case "version":
		fmt.Fprintf(stdout, "pnet %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'pnet help')", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: pnet <command> [flags]

Commands:
  serve     Run an echo server
  connect   Open an interactive session
  browse    List servers advertised over mDNS
  version   Print the version

Run 'pnet <command> --help' for the flags of a command.
`)
}

// newLogger builds the operational logger for level, writing to w.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// protocolLogger opens the CBOR event file, if any. The returned close
// function is never nil.
func protocolLogger(path string) (log.Logger, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	fl, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	return fl, fl.Close, nil
}
