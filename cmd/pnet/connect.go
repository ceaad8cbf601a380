package main

import (
	"context"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/PorkStudios/PorkLib-sub015/cmd/pnet/console"
	"github.com/PorkStudios/PorkLib-sub015/pkg/endpoint"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
)

// dialTimeout bounds connecting plus the configured channel handshakes.
const dialTimeout = 15 * time.Second

func runConnect(ctx context.Context, args []string, stdout io.Writer) error {
	var o options
	var find string
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	fs.StringVar(&find, "find", "", "Resolve the address of an mDNS-advertised server by instance name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := o.config(fs)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		cfg.Address = fs.Arg(0)
	}
	if find != "" {
		svc, err := findService(ctx, cfg.Advertise.Interface, find)
		if err != nil {
			return err
		}
		cfg.Address = svc.Addr()
		cfg.Transport = svc.Transport
		if svc.Path != "" {
			cfg.Path = svc.Path
		}
	}
	if cfg.Address == "" {
		return fmt.Errorf("no address: pass one, set --address, or use --find")
	}

	con, err := console.New()
	if err != nil {
		return err
	}
	logger, err := newLogger(con.Stdout(), o.logLevel)
	if err != nil {
		con.Close()
		return err
	}
	plog, closeLog, err := protocolLogger(o.logFile)
	if err != nil {
		con.Close()
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli, err := endpoint.NewClient(cfg, newEchoProtocol(con.Received), endpoint.Options{
		Logger:         logger,
		ProtocolLogger: plog,
		OnDisconnect: func(s *session.Session, reason error) {
			fmt.Fprintf(con.Stdout(), "Session closed: %v\n", reason)
			cancel()
		},
	})
	if err != nil {
		con.Close()
		return err
	}
	defer cli.Close()

	dctx, dcancel := context.WithTimeout(ctx, dialTimeout)
	s, err := cli.Dial(dctx, cfg.Address).Await(dctx)
	dcancel()
	if err != nil {
		con.Close()
		return fmt.Errorf("connect %s: %w", cfg.Address, err)
	}
	fmt.Fprintf(con.Stdout(), "Connected to %s as session %s\n", s.RemoteAddr(), s.ID())

	con.Bind(s)
	con.Run(ctx, cancel)
	return nil
}
