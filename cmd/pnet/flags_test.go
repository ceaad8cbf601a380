package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/endpoint"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func parse(t *testing.T, args ...string) (endpoint.Config, error) {
	t.Helper()
	var o options
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	fs.StringVar(&o.advertise, "advertise", "", "")
	require.NoError(t, fs.Parse(args))
	return o.config(fs)
}

func TestFlagsDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, endpoint.DefaultConfig(), cfg)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: websocket
address: 127.0.0.1:9000
path: /chat
secret: file-secret-long-enough
`), 0o600))

	cfg, err := parse(t, "-c", path, "-a", "127.0.0.1:9100", "--reliability", "reliable",
		"--channel", "7", "--channel", "8:reliable-ordered", "--advertise", "den")
	require.NoError(t, err)

	// From the file.
	assert.Equal(t, "websocket", cfg.Transport)
	assert.Equal(t, "/chat", cfg.Path)
	assert.Equal(t, "file-secret-long-enough", cfg.Secret)

	// From the flags.
	assert.Equal(t, "127.0.0.1:9100", cfg.Address)
	assert.Equal(t, wire.Reliable, cfg.DefaultReliability)
	assert.Equal(t, []endpoint.ChannelConfig{
		{ID: 7, Reliability: wire.Reliable},
		{ID: 8, Reliability: wire.ReliableOrdered},
	}, cfg.Channels)
	assert.True(t, cfg.Advertise.Enabled)
	assert.Equal(t, "den", cfg.Advertise.Instance)
	assert.NoError(t, cfg.Validate(nil))
}

func TestFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad reliability", []string{"--reliability", "maybe"}},
		{"bad channel id", []string{"--channel", "seven"}},
		{"bad channel reliability", []string{"--channel", "7:maybe"}},
		{"missing config", []string{"-c", "/nonexistent/pnet.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunDispatch(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "Usage: pnet")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Equal(t, "pnet "+version+"\n", out.String())

	assert.Error(t, run(context.Background(), []string{"frobnicate"}, &out))
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		_, err := newLogger(&out, level)
		assert.NoError(t, err, level)
	}
	_, err := newLogger(&out, "loud")
	assert.Error(t, err)
}
