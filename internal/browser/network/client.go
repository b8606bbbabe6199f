// internal/browser/network/client.go
package network

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagewalk/internal/config"
)

const (
	DefaultDialTimeout           = 15 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout        = 30 * time.Second

	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// SecureMinTLSVersion is the lowest TLS version used unless a caller overrides it.
const SecureMinTLSVersion = tls.VersionTLS12

// ClientConfig holds the transport settings of one conversation.
type ClientConfig struct {
	InsecureSkipVerify bool
	TLSConfig          *tls.Config
	RequestTimeout     time.Duration
	Dialer             *DialerConfig

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// ProxyURL routes every request through a forward proxy. Credentials in
	// its userinfo are sent as Proxy-Authorization.
	ProxyURL *url.URL

	// AcceptCompression advertises and decodes gzip, deflate and br.
	AcceptCompression bool
	// CheckContentLength turns short bodies into TruncatedError instead of a silent EOF.
	CheckContentLength bool

	// RateLimit caps requests per second; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	Logger *zap.Logger
}

// NewClientConfig returns the defaults for a browsing client.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:      DefaultRequestTimeout,
		Dialer:              NewDialerConfig(),
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		AcceptCompression:   true,
		RateBurst:           1,
		Logger:              zap.NewNop(),
	}
}

// ClientConfigFrom maps the network section of the application config onto a ClientConfig.
func ClientConfigFrom(nc config.NetworkConfig, acceptCompression bool, logger *zap.Logger) (*ClientConfig, error) {
	cfg := NewClientConfig()
	if nc.Timeout > 0 {
		cfg.RequestTimeout = nc.Timeout
	}
	cfg.InsecureSkipVerify = nc.IgnoreTLSErrors
	cfg.CheckContentLength = nc.CheckContentLength
	cfg.AcceptCompression = acceptCompression
	cfg.RateLimit = rate.Limit(nc.RateLimit)
	if nc.RateBurst > 0 {
		cfg.RateBurst = nc.RateBurst
	}
	if logger != nil {
		cfg.Logger = logger
	}

	if nc.Proxy.Enabled {
		proxyURL, err := url.Parse(nc.Proxy.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q: %w", nc.Proxy.Address, err)
		}
		if nc.Proxy.Username != "" {
			proxyURL.User = url.UserPassword(nc.Proxy.Username, nc.Proxy.Password)
		}
		cfg.ProxyURL = proxyURL
	}
	return cfg, nil
}

// NewHTTPTransport creates the base http.Transport with HTTP/2 enabled.
// Compression is left to CompressionMiddleware so Content-Length stays visible
// to the length check.
func NewHTTPTransport(cfg *ClientConfig) (*http.Transport, error) {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	dialerCfg := cfg.Dialer
	if dialerCfg == nil {
		dialerCfg = NewDialerConfig()
	}

	transport := &http.Transport{
		DialContext:           dialContextFunc(dialerCfg, cfg.Logger),
		TLSClientConfig:       configureTLS(cfg),
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	}

	if _, err := http2.ConfigureTransports(transport); err != nil {
		return nil, fmt.Errorf("failed to enable http2: %w", err)
	}
	return transport, nil
}

// NewRoundTripper assembles the middleware stack around base:
// rate limit -> decompression -> length check -> base.
// A nil base gets a fresh transport from NewHTTPTransport.
func NewRoundTripper(cfg *ClientConfig, base http.RoundTripper) (http.RoundTripper, error) {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if base == nil {
		transport, err := NewHTTPTransport(cfg)
		if err != nil {
			return nil, err
		}
		base = transport
	}

	var rt http.RoundTripper = NewLengthCheckMiddleware(base, cfg.CheckContentLength)
	if cfg.AcceptCompression {
		rt = NewCompressionMiddleware(rt)
	}
	if cfg.RateLimit > 0 {
		rt = NewRateLimitMiddleware(rt, cfg.RateLimit, cfg.RateBurst)
	}
	return rt, nil
}

// NewClient creates an http.Client that never follows redirects or stores
// cookies itself; the conversation owns both.
func NewClient(cfg *ClientConfig, base http.RoundTripper) (*http.Client, error) {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	rt, err := NewRoundTripper(cfg, base)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// configureTLS returns a clone of the caller's TLS config with secure defaults
// filled in for anything left unset.
func configureTLS(cfg *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}

	if len(tlsConfig.CurvePreferences) == 0 {
		tlsConfig.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	}
	if tlsConfig.ClientSessionCache == nil {
		tlsConfig.ClientSessionCache = tls.NewLRUClientSessionCache(128)
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"h2", "http/1.1"}
	}
	if tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = SecureMinTLSVersion
	}
	if tlsConfig.MinVersion < SecureMinTLSVersion {
		cfg.Logger.Warn("Minimum TLS version is set below TLS 1.2.",
			zap.Uint16("configured_version", tlsConfig.MinVersion))
	}

	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify
	return tlsConfig
}
