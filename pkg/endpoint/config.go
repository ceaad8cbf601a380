package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/PorkStudios/PorkLib-sub015/pkg/discovery"
	"github.com/PorkStudios/PorkLib-sub015/pkg/secure"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/pipe"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Defaults.
const (
	DefaultTransport = "tcp"
	DefaultWorkers   = 8
)

// Config configures a Client or Server.
type Config struct {
	// Transport selects the engine by name.
	Transport string `yaml:"transport" toml:"transport"`

	// Address is listened on by servers and dialed by clients.
	Address string `yaml:"address" toml:"address"`

	// LocalAddress binds dialed connections (tcp only).
	LocalAddress string `yaml:"local_address" toml:"local_address"`

	// Path is the websocket upgrade path.
	Path string `yaml:"path" toml:"path"`

	// TLS wraps tcp and websocket connections.
	TLS TLSConfig `yaml:"tls" toml:"tls"`

	// Secret enables the encryption pipeline handler with a pre-shared secret.
	Secret string `yaml:"secret" toml:"secret"`

	// DefaultReliability is the reliability of channel 0.
	DefaultReliability wire.Reliability `yaml:"default_reliability" toml:"default_reliability"`

	// Channels are opened by clients right after connecting.
	Channels []ChannelConfig `yaml:"channels" toml:"channels"`

	HandshakeTimeout time.Duration   `yaml:"handshake_timeout" toml:"handshake_timeout"`
	CloseTimeout     time.Duration   `yaml:"close_timeout" toml:"close_timeout"`
	KeepAlive        KeepAliveConfig `yaml:"keep_alive" toml:"keep_alive"`

	MaxFrameSize    uint32 `yaml:"max_frame_size" toml:"max_frame_size"`
	WriteQueueDepth int    `yaml:"write_queue_depth" toml:"write_queue_depth"`

	// Workers bounds the number of dials running at once.
	Workers int `yaml:"workers" toml:"workers"`

	// QueueSize selects a queued pool when positive: Execute fails with
	// scheduler.ErrQueueFull instead of blocking.
	QueueSize int `yaml:"queue_size" toml:"queue_size"`

	// Advertise publishes a server over mDNS.
	Advertise AdvertiseConfig `yaml:"advertise" toml:"advertise"`
}

// TLSConfig names certificate material on disk.
type TLSConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`

	// CAFile verifies the peer. Servers require client certificates when set.
	CAFile string `yaml:"ca_file" toml:"ca_file"`

	ServerName         string `yaml:"server_name" toml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`

	// SelfSigned makes a server generate a throwaway certificate when no
	// files are given.
	SelfSigned bool `yaml:"self_signed" toml:"self_signed"`
}

// ChannelConfig is a channel with its default reliability.
type ChannelConfig struct {
	ID          wire.ChannelID   `yaml:"id" toml:"id"`
	Reliability wire.Reliability `yaml:"reliability" toml:"reliability"`
}

// KeepAliveConfig mirrors session.KeepAliveConfig for config files.
type KeepAliveConfig struct {
	Interval       time.Duration `yaml:"interval" toml:"interval"`
	MaxMissedPongs int           `yaml:"max_missed_pongs" toml:"max_missed_pongs"`
}

// AdvertiseConfig configures mDNS advertisement.
type AdvertiseConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	Instance  string        `yaml:"instance" toml:"instance"`
	Interface string        `yaml:"interface" toml:"interface"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl"`
}

// DefaultConfig returns a config for ordered TCP with keep-alive.
func DefaultConfig() Config {
	ka := session.DefaultKeepAliveConfig()
	return Config{
		Transport:          DefaultTransport,
		DefaultReliability: wire.ReliableOrdered,
		HandshakeTimeout:   session.DefaultHandshakeTimeout,
		CloseTimeout:       session.DefaultCloseTimeout,
		KeepAlive:          KeepAliveConfig{Interval: ka.Interval, MaxMissedPongs: ka.MaxMissedPongs},
		Workers:            DefaultWorkers,
	}
}

// ChannelReliability returns the configured reliability of ch, falling
// back to DefaultReliability.
func (c *Config) ChannelReliability(ch wire.ChannelID) wire.Reliability {
	for _, cc := range c.Channels {
		if cc.ID == ch {
			return cc.Reliability
		}
	}
	return c.DefaultReliability
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		DefaultReliability: c.DefaultReliability,
		HandshakeTimeout:   c.HandshakeTimeout,
		CloseTimeout:       c.CloseTimeout,
		KeepAlive: session.KeepAliveConfig{
			Interval:       c.KeepAlive.Interval,
			MaxMissedPongs: c.KeepAlive.MaxMissedPongs,
		},
	}
}

// Validate checks the config against the engines in reg. It fails on the
// first problem: an unknown engine, a malformed address, or a reliability
// the engine cannot honor.
func (c *Config) Validate(reg *EngineRegistry) error {
	if reg == nil {
		reg = NewEngineRegistry()
	}
	rels, err := reg.Reliabilities(c.Transport)
	if err != nil {
		return configErr("transport", c.Transport, "%v (registered: %s)", err, strings.Join(reg.Names(), ", "))
	}
	isPipe := c.Transport == pipe.EngineName

	if c.Address != "" && !isPipe {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return configErr("address", c.Address, "%v", err)
		}
	}
	if c.LocalAddress != "" {
		if _, _, err := net.SplitHostPort(c.LocalAddress); err != nil {
			return configErr("local_address", c.LocalAddress, "%v", err)
		}
	}

	if err := wire.CheckReliability(c.DefaultReliability, c.Transport, rels); err != nil {
		return configErr("default_reliability", c.DefaultReliability, "%v", err)
	}
	seen := make(map[wire.ChannelID]bool, len(c.Channels))
	for i, cc := range c.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		if cc.ID == wire.DefaultChannel || cc.ID.IsControl() {
			return configErr(field+".id", cc.ID, "channel is reserved")
		}
		if seen[cc.ID] {
			return configErr(field+".id", cc.ID, "duplicate channel")
		}
		seen[cc.ID] = true
		if err := wire.CheckReliability(cc.Reliability, c.Transport, rels); err != nil {
			return configErr(field+".reliability", cc.Reliability, "%v", err)
		}
	}

	if c.HandshakeTimeout < 0 {
		return configErr("handshake_timeout", c.HandshakeTimeout, "must not be negative")
	}
	if c.CloseTimeout < 0 {
		return configErr("close_timeout", c.CloseTimeout, "must not be negative")
	}
	if c.KeepAlive.Interval < 0 || c.KeepAlive.MaxMissedPongs < 0 {
		return configErr("keep_alive", c.KeepAlive, "must not be negative")
	}
	if c.Workers < 0 || c.QueueSize < 0 || c.WriteQueueDepth < 0 {
		return configErr("workers", c.Workers, "pool and queue sizes must not be negative")
	}

	if c.Secret != "" && len(c.Secret) < secure.MinSecretSize {
		return configErr("secret", nil, "must be at least %d bytes", secure.MinSecretSize)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return configErr("tls", nil, "cert_file and key_file must be set together")
	}
	if c.TLS.Enabled && isPipe {
		return configErr("tls.enabled", true, "not supported by the %s engine", c.Transport)
	}

	if c.Advertise.Enabled {
		if isPipe {
			return configErr("advertise.enabled", true, "not supported by the %s engine", c.Transport)
		}
		if err := discovery.ValidateInstanceName(c.Advertise.Instance); err != nil {
			return configErr("advertise.instance", c.Advertise.Instance, "%v", err)
		}
	}
	return nil
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file over
// DefaultConfig. Unknown keys are an error. The result is not validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".toml":
		err = decodeTOML(data, &cfg)
	default:
		return Config{}, configErr("file", path, "unsupported config format %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}
