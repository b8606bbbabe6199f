// internal/browser/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// DialerConfig holds configuration for the TCP dialer used by the transport.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// NoDelay controls TCP_NODELAY.
	NoDelay  bool
	Resolver *net.Resolver
}

// NewDialerConfig returns the dialer defaults.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
		NoDelay:   true,
		Resolver:  net.DefaultResolver,
	}
}

// dialContextFunc builds the DialContext hook for http.Transport.
func dialContextFunc(cfg *DialerConfig, logger *zap.Logger) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:       cfg.Timeout,
		KeepAlive:     cfg.KeepAlive,
		FallbackDelay: 300 * time.Millisecond,
		Resolver:      cfg.Resolver,
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("tcp dial %s failed: %w", addr, err)
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetNoDelay(cfg.NoDelay); err != nil {
				// Not fatal; some platforms refuse the option.
				logger.Debug("Could not set TCP_NODELAY.", zap.String("addr", addr), zap.Error(err))
			}
		}
		return conn, nil
	}
}
