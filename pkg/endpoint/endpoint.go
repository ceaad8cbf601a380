package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/protocol"
	"github.com/PorkStudios/PorkLib-sub015/pkg/scheduler"
	"github.com/PorkStudios/PorkLib-sub015/pkg/secure"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// keyLabel is the keyring label of the session traffic key.
const keyLabel = "session"

// closeGrace is added to the session close timeout when waiting for
// sessions during shutdown.
const closeGrace = time.Second

// executor is a worker pool owned by an endpoint.
type executor interface {
	future.Executor
	Close() error
}

// endpoint holds what Client and Server share: the engine, the scheduler
// and pool running timers and forked work, the keyring, and the set of
// live sessions.
type endpoint struct {
	config  Config
	opts    Options
	proto   protocol.Handler
	logger  *slog.Logger
	engine  transport.Engine
	pool    executor
	sched   *scheduler.Scheduler
	keyring *secure.Keyring

	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool
}

func newEndpoint(cfg Config, proto protocol.Handler, opts Options, role string) (*endpoint, error) {
	opts.applyDefaults()
	if err := cfg.Validate(opts.Registry); err != nil {
		return nil, err
	}
	logger := opts.Logger.With("component", role, "transport", cfg.Transport)

	e := &endpoint{
		config:   cfg,
		opts:     opts,
		proto:    proto,
		logger:   logger,
		sessions: make(map[string]*session.Session),
	}

	eopts := EngineOptions{
		LocalAddr:       cfg.LocalAddress,
		Path:            cfg.Path,
		MaxFrameSize:    cfg.MaxFrameSize,
		WriteQueueDepth: cfg.WriteQueueDepth,
		DrainTimeout:    cfg.CloseTimeout,
		OnAcceptError: func(err error) {
			logger.Debug("accept failed", "error", err)
		},
	}
	var err error
	if role == "server" {
		eopts.ServerTLS, err = cfg.serverTLS()
	} else {
		eopts.ClientTLS, err = cfg.clientTLS()
	}
	if err != nil {
		return nil, err
	}
	if e.engine, err = opts.Registry.Engine(cfg.Transport, eopts); err != nil {
		return nil, err
	}

	if cfg.Secret != "" {
		if e.keyring, err = secure.NewKeyring([]byte(cfg.Secret), nil); err != nil {
			return nil, err
		}
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	if cfg.QueueSize > 0 {
		e.pool = scheduler.NewQueuedPool(workers, cfg.QueueSize, logger)
	} else {
		e.pool = scheduler.NewBlockingPool(workers, logger)
	}
	// Timers run on their own goroutines. A Dial holds its pool slot until
	// the handshake timers of its session fire.
	e.sched = scheduler.New(scheduler.Config{Logger: logger})
	return e, nil
}

// Engine returns the transport engine.
func (e *endpoint) Engine() transport.Engine { return e.engine }

// Scheduler returns the scheduler shared by the endpoint's sessions.
func (e *endpoint) Scheduler() *scheduler.Scheduler { return e.sched }

// Config returns the endpoint configuration.
func (e *endpoint) Config() Config { return e.config }

func (e *endpoint) handlers() (*pipeline.Builder[*session.Session], error) {
	b := pipeline.NewBuilder[*session.Session]()
	if e.keyring != nil {
		t, err := e.keyring.Transform(keyLabel)
		if err != nil {
			return nil, err
		}
		b.AddLast(secure.HandlerName, secure.NewHandler(t))
	}
	if e.opts.Pipeline != nil {
		e.opts.Pipeline(b)
	}
	if e.proto != nil {
		b.AddLast("protocol", e.proto)
	}
	return b, nil
}

// open wraps conn in a session, attaches the application object and starts
// it. The session is tracked until it closes.
func (e *endpoint) open(conn transport.Conn) (*session.Session, error) {
	b, err := e.handlers()
	if err != nil {
		conn.Abort()
		return nil, err
	}

	sc := e.config.sessionConfig()
	sc.Scheduler = e.sched
	sc.Logger = e.logger
	sc.ProtocolLogger = e.opts.ProtocolLogger
	sc.OnError = func(s *session.Session, err error) {
		if e.opts.OnError != nil {
			e.opts.OnError(s, err)
		}
	}
	sc.OnClosed = e.forget

	s, err := session.New(conn, e.engine, b, sc)
	if err != nil {
		conn.Abort()
		return nil, err
	}
	if e.opts.SessionFactory != nil {
		v, err := e.opts.SessionFactory(s)
		if err != nil {
			conn.Abort()
			return nil, fmt.Errorf("session factory: %w", err)
		}
		s.Attach(v)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Abort()
		return nil, ErrEndpointClosed
	}
	e.sessions[s.ID()] = s
	e.mu.Unlock()

	if err := s.Start(); err != nil {
		return nil, err
	}
	e.logger.Debug("session opened", "session", s.ID(), "remote", s.RemoteAddr())
	if e.opts.OnConnect != nil {
		e.opts.OnConnect(s)
	}
	return s, nil
}

func (e *endpoint) forget(s *session.Session, reason error) {
	e.mu.Lock()
	_, tracked := e.sessions[s.ID()]
	delete(e.sessions, s.ID())
	e.mu.Unlock()
	if !tracked {
		return
	}
	e.logger.Debug("session closed", "session", s.ID(), "reason", reason)
	if e.opts.OnDisconnect != nil {
		e.opts.OnDisconnect(s, reason)
	}
}

// Sessions returns a snapshot of the live sessions.
func (e *endpoint) Sessions() []*session.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of live sessions.
func (e *endpoint) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Broadcast sends msg to every live session. Delivery is best-effort: a
// failure on one session does not stop the others, and all failures are
// returned together.
func (e *endpoint) Broadcast(msg any, rel wire.Reliability, ch wire.ChannelID) error {
	var errs error
	for _, s := range e.Sessions() {
		if err := s.Send(msg, rel, ch); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
		}
	}
	return errs
}

// markClosed reports whether this call closed the endpoint.
func (e *endpoint) markClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	return true
}

// closeSessions closes every session gracefully and in parallel, waiting
// at most the close timeout plus a grace period for each.
func (e *endpoint) closeSessions() error {
	timeout := e.config.CloseTimeout
	if timeout <= 0 {
		timeout = session.DefaultCloseTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+closeGrace)
	defer cancel()

	var g errgroup.Group
	for _, s := range e.Sessions() {
		g.Go(func() error {
			if _, err := s.Close(ErrEndpointClosed).Await(ctx); err != nil {
				s.CloseNow(ErrEndpointClosed)
				return fmt.Errorf("session %s: %w", s.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// release frees the scheduler, pool and keyring.
func (e *endpoint) release() error {
	var errs error
	errs = multierr.Append(errs, e.sched.Close())
	errs = multierr.Append(errs, e.pool.Close())
	if e.keyring != nil {
		errs = multierr.Append(errs, e.keyring.Close())
	}
	return errs
}

func isClosed(err error) bool {
	return errors.Is(err, transport.ErrListenerClosed) || errors.Is(err, context.Canceled)
}
