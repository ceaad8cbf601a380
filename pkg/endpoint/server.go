package endpoint

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/PorkStudios/PorkLib-sub015/pkg/discovery"
	"github.com/PorkStudios/PorkLib-sub015/pkg/protocol"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
)

// Server accepts sessions and tracks them until they close.
type Server struct {
	*endpoint

	lmu        sync.Mutex
	ln         transport.Listener
	cancel     context.CancelFunc
	acceptDone chan struct{}
	advertiser *discovery.Advertiser
}

// NewServer creates a server. proto may be nil when Options.Pipeline
// installs its own terminal handler.
func NewServer(cfg Config, proto protocol.Handler, opts Options) (*Server, error) {
	e, err := newEndpoint(cfg, proto, opts, "server")
	if err != nil {
		return nil, err
	}
	return &Server{endpoint: e}, nil
}

// Listen starts accepting on addr, or on Config.Address when addr is
// empty. Accepting continues in the background until Close.
func (s *Server) Listen(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.config.Address
	}

	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrEndpointClosed
	}
	if s.ln != nil {
		return ErrAlreadyListening
	}

	ln, err := s.engine.Listen(ctx, addr)
	if err != nil {
		return err
	}
	s.ln = ln

	if s.config.Advertise.Enabled {
		if err := s.advertise(); err != nil {
			ln.Close()
			s.ln = nil
			return err
		}
	}

	actx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.acceptDone = make(chan struct{})
	go s.acceptLoop(actx, ln)

	s.logger.Info("listening", "addr", ln.Addr())
	return nil
}

func (s *Server) advertise() error {
	port, err := listenPort(s.ln.Addr())
	if err != nil {
		return err
	}
	a := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Interface: s.config.Advertise.Interface,
		TTL:       s.config.Advertise.TTL,
	})
	info := &discovery.ServiceInfo{
		Instance:      s.config.Advertise.Instance,
		Port:          port,
		Transport:     s.engine.Name(),
		Reliabilities: s.engine.Reliabilities(),
		Path:          s.config.Path,
	}
	if p, ok := s.proto.(interface{ Name() string }); ok {
		info.Protocol = p.Name()
	}
	if err := a.Advertise(info); err != nil {
		return err
	}
	s.advertiser = a
	return nil
}

func listenPort(addr net.Addr) (uint16, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, fmt.Errorf("listen address %s: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("listen port %s: %w", portStr, err)
	}
	return uint16(port), nil
}

func (s *Server) acceptLoop(ctx context.Context, ln transport.Listener) {
	defer close(s.acceptDone)
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			if s.opts.OnError != nil {
				s.opts.OnError(nil, err)
			}
			continue
		}
		go func() {
			if _, err := s.open(conn); err != nil {
				s.logger.Debug("session not opened", "error", err)
			}
		}()
	}
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close shuts the server down: sessions are closed gracefully in
// parallel, then the listener, the mDNS advertisement, the scheduler, the
// pool and the keyring are released. Connections arriving meanwhile are
// refused.
func (s *Server) Close() error {
	if !s.markClosed() {
		return nil
	}
	errs := s.closeSessions()

	s.lmu.Lock()
	ln, cancel, done, adv := s.ln, s.cancel, s.acceptDone, s.advertiser
	s.lmu.Unlock()
	if ln != nil {
		errs = multierr.Append(errs, ln.Close())
		cancel()
		<-done
	}
	if adv != nil {
		errs = multierr.Append(errs, adv.Close())
	}
	return multierr.Append(errs, s.release())
}
