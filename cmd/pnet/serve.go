package main

import (
	"context"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/PorkStudios/PorkLib-sub015/pkg/endpoint"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func runServe(ctx context.Context, args []string, stdout io.Writer) error {
	var o options
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	fs.StringVar(&o.advertise, "advertise", "", "Advertise over mDNS under this instance name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := o.config(fs)
	if err != nil {
		return err
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:7400"
	}
	logger, err := newLogger(stdout, o.logLevel)
	if err != nil {
		return err
	}
	plog, closeLog, err := protocolLogger(o.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	srv, err := endpoint.NewServer(cfg, newEchoProtocol(echo), endpoint.Options{
		Logger:         logger,
		ProtocolLogger: plog,
		OnConnect: func(s *session.Session) {
			logger.Info("session connected", "session", s.ID(), "remote", s.RemoteAddr())
		},
		OnDisconnect: func(s *session.Session, reason error) {
			logger.Info("session disconnected", "session", s.ID(), "reason", reason)
		},
		OnError: func(s *session.Session, err error) {
			if s == nil {
				logger.Warn("server error", "error", err)
				return
			}
			logger.Warn("session error", "session", s.ID(), "error", err)
		},
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx, ""); err != nil {
		srv.Close()
		return err
	}
	fmt.Fprintf(stdout, "pnet echo server on %s (%s)\n", srv.Addr(), cfg.Transport)

	<-ctx.Done()
	logger.Info("shutting down", "sessions", srv.SessionCount())
	// Tell everyone before the graceful close.
	_ = srv.Broadcast("server shutting down", cfg.DefaultReliability, wire.DefaultChannel)
	return srv.Close()
}
