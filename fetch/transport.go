package fetch

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/amp-labs/amp-fsm/retry"
)

const (
	defaultIdleConnTimeout     = 90 * time.Second
	defaultMaxIdleConns        = 10
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultKeepAlive           = 30 * time.Second
)

type Option func(*config)

type config struct {
	Transport      http.RoundTripper
	EnableDNSCache bool
	InsecureTLS    bool
	MaxBytes       int64
	Attempts       retry.Attempts
}

// EnableDNSCache resolves hosts through a shared caching resolver.
func EnableDNSCache(c *config) {
	c.EnableDNSCache = true
}

// InsecureTLS skips certificate verification. Only for local testing.
func InsecureTLS(c *config) {
	c.InsecureTLS = true
}

// WithTransport replaces the underlying round tripper. The decompressing and
// logging layers still wrap it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.Transport = rt
	}
}

// WithAttempts sets the total number of tries for transient failures.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.Attempts = retry.Attempts(n)
	}
}

// WithMaxBytes caps the size of a fetched document after decompression.
func WithMaxBytes(n int64) Option {
	return func(c *config) {
		c.MaxBytes = n
	}
}

func readOptions(ctx context.Context, opts ...Option) *config {
	maxBytes := envutil.Int(ctx, "FSM_FETCH_MAX_BYTES",
		envutil.Default(defaultMaxBytes)).
		ValueOrElse(defaultMaxBytes)

	attempts := envutil.Int(ctx, "FSM_FETCH_ATTEMPTS",
		envutil.Default(defaultAttempts)).
		ValueOrElse(defaultAttempts)

	cfg := &config{
		EnableDNSCache: envutil.Bool(ctx, "FSM_FETCH_DNS_CACHE", envutil.Default(false)).ValueOrElse(false),
		MaxBytes:       int64(maxBytes),
		Attempts:       retry.Attempts(max(attempts, 1)),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return cfg
}

// newTransport builds an http.Transport whose timeouts can be tuned with the
// HTTP_TRANSPORT_* environment variables.
func newTransport(ctx context.Context, cfg *config) *http.Transport {
	maxIdleConns := envutil.Int(ctx, "HTTP_TRANSPORT_MAX_IDLE_CONNS",
		envutil.Default(defaultMaxIdleConns)).
		ValueOrElse(defaultMaxIdleConns)

	idleConnTimeout := envutil.Duration(ctx, "HTTP_TRANSPORT_IDLE_CONN_TIMEOUT",
		envutil.Default(defaultIdleConnTimeout)).
		ValueOrElse(defaultIdleConnTimeout)

	tlsHandshakeTimeout := envutil.Duration(ctx, "HTTP_TRANSPORT_TLS_HANDSHAKE_TIMEOUT",
		envutil.Default(defaultTLSHandshakeTimeout)).
		ValueOrElse(defaultTLSHandshakeTimeout)

	dialTimeout := envutil.Duration(ctx, "HTTP_TRANSPORT_DIAL_TIMEOUT",
		envutil.Default(defaultDialTimeout)).
		ValueOrElse(defaultDialTimeout)

	keepAlive := envutil.Duration(ctx, "HTTP_TRANSPORT_DIAL_KEEPALIVE",
		envutil.Default(defaultKeepAlive)).
		ValueOrElse(defaultKeepAlive)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		MaxIdleConns:        maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	if cfg.EnableDNSCache {
		useDNSCacheDialer(transport, dialTimeout, keepAlive)
	}

	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
		}
	}

	return transport
}

// roundTripper stacks logging over decompression over the base transport.
func roundTripper(ctx context.Context, cfg *config) http.RoundTripper {
	base := cfg.Transport
	if base == nil {
		base = newTransport(ctx, cfg)
	}

	return newLoggingTransport(newDecompressor(base))
}
