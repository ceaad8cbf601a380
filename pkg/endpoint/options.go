package endpoint

import (
	"log/slog"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
)

// SessionFactory builds the application object attached to a new session.
// An error closes the session before it is reported as connected.
type SessionFactory func(s *session.Session) (any, error)

// PipelineInitializer adds handlers between the secure and protocol
// handlers of every session.
type PipelineInitializer func(b *pipeline.Builder[*session.Session])

// Options carries hooks and collaborators of an endpoint.
type Options struct {
	// Registry resolves Config.Transport. Defaults to NewEngineRegistry().
	Registry *EngineRegistry

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures protocol events of every session (optional).
	ProtocolLogger log.Logger

	Pipeline       PipelineInitializer
	SessionFactory SessionFactory

	// OnConnect is called once a session is open and its attachment set.
	OnConnect func(s *session.Session)

	// OnDisconnect is called after a session closed.
	OnDisconnect func(s *session.Session, reason error)

	// OnError receives exceptions no pipeline handler consumed, and server
	// accept failures with a nil session.
	OnError func(s *session.Session, err error)
}

func (o *Options) applyDefaults() {
	if o.Registry == nil {
		o.Registry = NewEngineRegistry()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
