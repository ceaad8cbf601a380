package endpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/endpoint"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/pipe"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func TestRegistryBuiltins(t *testing.T) {
	reg := endpoint.NewEngineRegistry()
	assert.Equal(t, []string{"pipe", "tcp", "websocket"}, reg.Names())

	rels, err := reg.Reliabilities("tcp")
	require.NoError(t, err)
	assert.True(t, rels.Has(wire.ReliableOrdered))
	assert.False(t, rels.Has(wire.Unreliable))

	for _, name := range reg.Names() {
		e, err := reg.Engine(name, endpoint.EngineOptions{})
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := endpoint.NewEngineRegistry()
	_, err := reg.Engine("smoke-signal", endpoint.EngineOptions{})
	assert.ErrorIs(t, err, endpoint.ErrUnknownEngine)
	_, err = reg.Reliabilities("smoke-signal")
	assert.ErrorIs(t, err, endpoint.ErrUnknownEngine)
}

func TestRegistrySharesPipe(t *testing.T) {
	reg := endpoint.NewEngineRegistry()
	a, err := reg.Engine("pipe", endpoint.EngineOptions{})
	require.NoError(t, err)
	b, err := reg.Engine("pipe", endpoint.EngineOptions{MaxFrameSize: 64})
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := endpoint.NewEngineRegistry().Engine("pipe", endpoint.EngineOptions{})
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestRegistryCustomEngine(t *testing.T) {
	reg := endpoint.NewEngineRegistry()
	custom := pipe.New(pipe.Config{})
	reg.Register("loopback", wire.NewReliabilitySet(wire.Unreliable), func(endpoint.EngineOptions) (transport.Engine, error) {
		return custom, nil
	})
	assert.Contains(t, reg.Names(), "loopback")

	cfg := endpoint.DefaultConfig()
	cfg.Transport = "loopback"
	cfg.DefaultReliability = wire.Unreliable
	assert.NoError(t, cfg.Validate(reg))

	cfg.DefaultReliability = wire.Reliable
	err := cfg.Validate(reg)
	assert.ErrorIs(t, err, endpoint.ErrInvalidConfig)
	assert.ErrorContains(t, err, "loopback does not support RELIABLE")
}
