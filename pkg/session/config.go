package session

import (
	"log/slog"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/scheduler"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Session defaults.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
)

// Keep-alive defaults.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultMaxMissedPongs is the default number of unanswered pings before
	// the session is considered dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures liveness pings on the control side-channel.
// A zero Interval disables keep-alive.
type KeepAliveConfig struct {
	Interval       time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:       DefaultPingInterval,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead peer goes unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Interval * time.Duration(c.MaxMissedPongs+1)
}

// Config configures a Session.
type Config struct {
	// DefaultReliability is used for channel 0 and when a send does not name
	// one. It must be honored by the transport.
	DefaultReliability wire.Reliability

	// HandshakeTimeout bounds channel open and close handshakes.
	HandshakeTimeout time.Duration

	// CloseTimeout bounds a graceful close before it turns into an abort.
	CloseTimeout time.Duration

	// KeepAlive configures pings. Zero disables them.
	KeepAlive KeepAliveConfig

	// Scheduler runs timeouts and keep-alive. A private one is created when nil.
	Scheduler *scheduler.Scheduler

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures protocol events (optional).
	ProtocolLogger log.Logger

	// OnError receives exceptions no pipeline handler consumed.
	OnError func(s *Session, err error)

	// OnClosed is called once when the session is gone.
	OnClosed func(s *Session, reason error)
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.KeepAlive.Interval > 0 && c.KeepAlive.MaxMissedPongs <= 0 {
		c.KeepAlive.MaxMissedPongs = DefaultMaxMissedPongs
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
