package endpoint

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
)

// selfSignedValidity is the lifetime of generated server certificates.
const selfSignedValidity = 24 * time.Hour

// serverTLS builds the listener TLS config, or nil when TLS is off.
func (c *Config) serverTLS() (*tls.Config, error) {
	if !c.TLS.Enabled {
		return nil, nil
	}
	var tc transport.TLSConfig
	switch {
	case c.TLS.CertFile != "":
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		tc.Certificate = cert
	case c.TLS.SelfSigned:
		cert, err := transport.GenerateSelfSigned(selfSignedValidity, tlsHosts(c.Address)...)
		if err != nil {
			return nil, err
		}
		tc.Certificate = cert
	default:
		return nil, configErr("tls", nil, "servers need cert_file and key_file or self_signed")
	}
	if c.TLS.CAFile != "" {
		pool, err := transport.LoadCertPool(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load client CAs: %w", err)
		}
		tc.ClientCAs = pool
	}
	return transport.NewServerTLSConfig(&tc)
}

// clientTLS builds the dialer TLS config, or nil when TLS is off.
func (c *Config) clientTLS() (*tls.Config, error) {
	if !c.TLS.Enabled {
		return nil, nil
	}
	tc := transport.TLSConfig{
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}
	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		tc.Certificate = cert
	}
	if c.TLS.CAFile != "" {
		pool, err := transport.LoadCertPool(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load root CAs: %w", err)
		}
		tc.RootCAs = pool
	}
	if tc.ServerName == "" {
		if hosts := tlsHosts(c.Address); len(hosts) > 0 {
			tc.ServerName = hosts[0]
		}
	}
	return transport.NewClientTLSConfig(&tc)
}

// tlsHosts returns the host of addr, or localhost for wildcard addresses.
func tlsHosts(addr string) []string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" || host == "0.0.0.0" || host == "::" {
		return []string{"localhost", "127.0.0.1"}
	}
	return []string{host}
}
