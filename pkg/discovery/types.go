package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

const (
	// ServiceType is the DNS-SD service type of pnet servers.
	ServiceType = "_pnet._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// DefaultTTL is the record TTL when AdvertiserConfig.TTL is zero.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyTransport     = "tr"
	TXTKeyReliabilities = "rel"
	TXTKeyPath          = "path"
	TXTKeyProtocol      = "ver"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("invalid instance name")
	ErrInvalidPort         = errors.New("invalid port")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// Instance is the advertised server name.
	Instance string

	// Port the server listens on.
	Port uint16

	// Transport is the engine name.
	Transport string

	// Reliabilities the engine honors.
	Reliabilities wire.ReliabilitySet

	// Path of a websocket endpoint.
	Path string

	// Protocol is the application protocol name.
	Protocol string
}

// Service is a server found by a Browser.
type Service struct {
	ServiceInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the IPv4 and IPv6 addresses seen for the service.
	Addresses []string
}

// Addr returns a dialable host:port, preferring the first address seen.
func (s *Service) Addr() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	Interface string

	// TTL of the published records.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}
