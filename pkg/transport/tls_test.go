package transport

import (
	"context"
	"crypto/tls"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func generateTestCertificate(t *testing.T) tls.Certificate {
	t.Helper()
	cert, err := GenerateSelfSigned(time.Hour, "127.0.0.1", "localhost")
	if err != nil {
		t.Fatalf("GenerateSelfSigned failed: %v", err)
	}
	return cert
}

func TestNewServerTLSConfig(t *testing.T) {
	cert := generateTestCertificate(t)

	cfg, err := NewServerTLSConfig(&TLSConfig{Certificate: cert})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 || cfg.MaxVersion != tls.VersionTLS13 {
		t.Errorf("TLS versions = %x-%x, want TLS 1.3 only", cfg.MinVersion, cfg.MaxVersion)
	}
	if len(cfg.NextProtos) != 1 || cfg.NextProtos[0] != ALPNProtocol {
		t.Errorf("NextProtos = %v", cfg.NextProtos)
	}
	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v without client CAs", cfg.ClientAuth)
	}

	pool, err := CertPool(cert)
	if err != nil {
		t.Fatalf("CertPool failed: %v", err)
	}
	cfg, err = NewServerTLSConfig(&TLSConfig{Certificate: cert, ClientCAs: pool})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v with client CAs", cfg.ClientAuth)
	}
}

func TestNewServerTLSConfigNoCert(t *testing.T) {
	if _, err := NewServerTLSConfig(&TLSConfig{}); err == nil {
		t.Error("expected error without certificate")
	}
	if _, err := NewServerTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	if _, err := NewClientTLSConfig(&TLSConfig{}); err == nil {
		t.Error("expected error without roots")
	}
	cfg, err := NewClientTLSConfig(&TLSConfig{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}
	if len(cfg.Certificates) != 0 {
		t.Errorf("unexpected client certificate")
	}
}

func TestVerifyConnection(t *testing.T) {
	tests := []struct {
		name    string
		state   tls.ConnectionState
		wantErr bool
	}{
		{"valid", tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: ALPNProtocol}, false},
		{"wrong version", tls.ConnectionState{Version: tls.VersionTLS12, NegotiatedProtocol: ALPNProtocol}, true},
		{"wrong ALPN", tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: "h2"}, true},
		{"no ALPN", tls.ConnectionState{Version: tls.VersionTLS13}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyConnection(tt.state)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyConnection() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTLSHandshake(t *testing.T) {
	cert := generateTestCertificate(t)
	pool, err := CertPool(cert)
	if err != nil {
		t.Fatalf("CertPool failed: %v", err)
	}
	serverCfg, _ := NewServerTLSConfig(&TLSConfig{Certificate: cert})
	clientCfg, err := NewClientTLSConfig(&TLSConfig{RootCAs: pool, ServerName: "localhost"})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		errCh <- conn.(*tls.Conn).HandshakeContext(context.Background())
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn := tls.Client(raw, clientCfg)
	defer conn.Close()
	if err := conn.HandshakeContext(context.Background()); err != nil {
		t.Fatalf("client handshake failed: %v", err)
	}
	if err := VerifyConnection(conn.ConnectionState()); err != nil {
		t.Errorf("VerifyConnection failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("server handshake failed: %v", err)
	}
}

func TestWriteKeyPairAndLoad(t *testing.T) {
	cert := generateTestCertificate(t)
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	if err := WriteKeyPair(cert, certFile, keyFile); err != nil {
		t.Fatalf("WriteKeyPair failed: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(certFile, keyFile); err != nil {
		t.Fatalf("LoadX509KeyPair failed: %v", err)
	}
	if _, err := LoadCertPool(certFile); err != nil {
		t.Fatalf("LoadCertPool failed: %v", err)
	}
	if _, err := LoadCertPool(keyFile); err == nil {
		t.Error("expected error loading a key as cert pool")
	}
}
