package main

import (
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/PorkStudios/PorkLib-sub015/pkg/endpoint"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// options are the flags shared by every command.
type options struct {
	configFile  string
	transport   string
	address     string
	path        string
	secret      string
	reliability string
	channels    []string

	tls        bool
	certFile   string
	keyFile    string
	caFile     string
	insecure   bool
	selfSigned bool

	advertise string
	iface     string

	logLevel string
	logFile  string
}

func addCommonFlags(fs *flag.FlagSet, o *options) {
	fs.StringVarP(&o.configFile, "config", "c", "", "YAML or TOML configuration file")
	fs.StringVarP(&o.transport, "transport", "t", endpoint.DefaultTransport, "Transport engine: tcp, websocket")
	fs.StringVarP(&o.address, "address", "a", "", "Listen or dial address (host:port)")
	fs.StringVar(&o.path, "path", "", "WebSocket upgrade path")
	fs.StringVar(&o.secret, "secret", "", "Pre-shared secret enabling encryption")
	fs.StringVar(&o.reliability, "reliability", "", "Default reliability of channel 0")
	fs.StringSliceVar(&o.channels, "channel", nil, "Channel as id[:reliability] (repeatable)")

	fs.BoolVar(&o.tls, "tls", false, "Enable TLS")
	fs.StringVar(&o.certFile, "cert", "", "TLS certificate file")
	fs.StringVar(&o.keyFile, "key", "", "TLS private key file")
	fs.StringVar(&o.caFile, "ca", "", "CA file verifying the peer")
	fs.BoolVar(&o.insecure, "insecure", false, "Skip TLS verification of the server")
	fs.BoolVar(&o.selfSigned, "self-signed", false, "Serve TLS with a generated certificate")

	fs.StringVar(&o.iface, "interface", "", "Network interface for mDNS")

	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFile, "log-file", "", "Write protocol events to a CBOR file")
}

// config loads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func (o *options) config(fs *flag.FlagSet) (endpoint.Config, error) {
	cfg := endpoint.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = endpoint.LoadConfig(o.configFile); err != nil {
			return endpoint.Config{}, err
		}
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("transport", func() { cfg.Transport = o.transport })
	set("address", func() { cfg.Address = o.address })
	set("path", func() { cfg.Path = o.path })
	set("secret", func() { cfg.Secret = o.secret })
	set("tls", func() { cfg.TLS.Enabled = o.tls })
	set("cert", func() { cfg.TLS.CertFile = o.certFile })
	set("key", func() { cfg.TLS.KeyFile = o.keyFile })
	set("ca", func() { cfg.TLS.CAFile = o.caFile })
	set("insecure", func() { cfg.TLS.InsecureSkipVerify = o.insecure })
	set("self-signed", func() { cfg.TLS.SelfSigned = o.selfSigned })
	set("interface", func() { cfg.Advertise.Interface = o.iface })

	if fs.Changed("reliability") {
		r, err := wire.ParseReliability(o.reliability)
		if err != nil {
			return endpoint.Config{}, fmt.Errorf("--reliability: %w", err)
		}
		cfg.DefaultReliability = r
	}
	if fs.Changed("channel") {
		channels, err := parseChannels(o.channels, cfg.DefaultReliability)
		if err != nil {
			return endpoint.Config{}, err
		}
		cfg.Channels = channels
	}
	if fs.Changed("advertise") {
		cfg.Advertise.Enabled = o.advertise != ""
		cfg.Advertise.Instance = o.advertise
	}
	return cfg, nil
}

// parseChannels parses "id" or "id:reliability" specs.
func parseChannels(specs []string, def wire.Reliability) ([]endpoint.ChannelConfig, error) {
	out := make([]endpoint.ChannelConfig, 0, len(specs))
	for _, spec := range specs {
		idStr, relStr, hasRel := strings.Cut(spec, ":")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("--channel %q: invalid id", spec)
		}
		cc := endpoint.ChannelConfig{ID: wire.ChannelID(id), Reliability: def}
		if hasRel {
			if cc.Reliability, err = wire.ParseReliability(relStr); err != nil {
				return nil, fmt.Errorf("--channel %q: %w", spec, err)
			}
		}
		out = append(out, cc)
	}
	return out, nil
}
