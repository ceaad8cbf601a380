package endpoint

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/pipe"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/tcp"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/websocket"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// EngineOptions are the engine settings derived from a Config.
type EngineOptions struct {
	ServerTLS       *tls.Config
	ClientTLS       *tls.Config
	LocalAddr       string
	Path            string
	MaxFrameSize    uint32
	WriteQueueDepth int
	DrainTimeout    time.Duration
	OnAcceptError   func(err error)
}

// EngineFactory builds an engine.
type EngineFactory func(opts EngineOptions) (transport.Engine, error)

type registryEntry struct {
	reliabilities wire.ReliabilitySet
	factory       EngineFactory
}

// EngineRegistry maps transport names to engine factories. A registry is
// an explicit value owned by whoever builds endpoints; endpoints sharing a
// registry share its in-process pipe engine.
type EngineRegistry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry

	pipeOnce sync.Once
	pipe     *pipe.Engine
}

// NewEngineRegistry returns a registry with the tcp, websocket and pipe
// engines.
func NewEngineRegistry() *EngineRegistry {
	r := &EngineRegistry{entries: make(map[string]registryEntry)}
	r.Register(tcp.EngineName, tcp.Reliabilities, func(opts EngineOptions) (transport.Engine, error) {
		return tcp.New(tcp.Config{
			ServerTLS:     opts.ServerTLS,
			ClientTLS:     opts.ClientTLS,
			LocalAddr:     opts.LocalAddr,
			MaxFrameSize:  opts.MaxFrameSize,
			OnAcceptError: opts.OnAcceptError,
			Stream: transport.StreamOptions{
				WriteQueueDepth: opts.WriteQueueDepth,
				DrainTimeout:    opts.DrainTimeout,
			},
		}), nil
	})
	r.Register(websocket.EngineName, websocket.Reliabilities, func(opts EngineOptions) (transport.Engine, error) {
		return websocket.New(websocket.Config{
			Path:            opts.Path,
			ServerTLS:       opts.ServerTLS,
			ClientTLS:       opts.ClientTLS,
			MaxFrameSize:    opts.MaxFrameSize,
			WriteQueueDepth: opts.WriteQueueDepth,
			DrainTimeout:    opts.DrainTimeout,
		}), nil
	})
	// The pipe engine is built once, from the options of the first caller.
	r.Register(pipe.EngineName, wire.AllReliabilities, func(opts EngineOptions) (transport.Engine, error) {
		r.pipeOnce.Do(func() {
			r.pipe = pipe.New(pipe.Config{
				MaxFrameSize:    opts.MaxFrameSize,
				WriteQueueDepth: opts.WriteQueueDepth,
			})
		})
		return r.pipe, nil
	})
	return r
}

// Register adds or replaces the factory for name. rels are the levels
// the engine honors, checked by Config.Validate without building it.
func (r *EngineRegistry) Register(name string, rels wire.ReliabilitySet, f EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registryEntry{reliabilities: rels, factory: f}
}

// Reliabilities returns the levels the named engine honors.
func (r *EngineRegistry) Reliabilities(name string) (wire.ReliabilitySet, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e.reliabilities, nil
}

// Names returns the registered transport names, sorted.
func (r *EngineRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine builds the engine registered under name.
func (r *EngineRegistry) Engine(name string, opts EngineOptions) (transport.Engine, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e.factory(opts)
}
