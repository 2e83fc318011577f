package connmanager

import (
	"net"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/featherchain/featherd/infrastructure/config"
)

const dialTimeout = 30 * time.Second

// DefaultDialer returns a DialFunc that dials TCP directly.
func DefaultDialer() DialFunc {
	return func(address string) (net.Conn, error) {
		return net.DialTimeout("tcp", address, dialTimeout)
	}
}

// ProxyDialer returns a DialFunc that dials through a SOCKS5 proxy.
func ProxyDialer(proxyAddress, username, password string) DialFunc {
	proxy := &socks.Proxy{
		Addr:     proxyAddress,
		Username: username,
		Password: password,
	}
	return func(address string) (net.Conn, error) {
		return proxy.Dial("tcp", address)
	}
}

// DialerFromConfig picks the dialer matching the proxy configuration.
func DialerFromConfig(cfg *config.Config) DialFunc {
	if cfg.Proxy != "" {
		return ProxyDialer(cfg.Proxy, cfg.ProxyUser, cfg.ProxyPass)
	}
	return DefaultDialer()
}
