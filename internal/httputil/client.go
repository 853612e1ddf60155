package httputil

import (
	"net"
	"net/http"
	"time"
)

type ClientConfig struct {
	// Timeout bounds the whole exchange including the body. Leave it zero
	// for streamed bodies and bound calls with a context deadline instead.
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:               0,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
}

// VendorConfig is DefaultConfig with the header wait matched to the upstream
// timeout, since a single-shot vendor reply only sends headers once the whole
// completion is ready.
func VendorConfig(upstreamTimeout time.Duration) ClientConfig {
	cfg := DefaultConfig()
	if upstreamTimeout > 0 {
		cfg.ResponseHeaderTimeout = upstreamTimeout
	}
	return cfg
}

func NewClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

func DefaultClient() *http.Client {
	return NewClient(DefaultConfig())
}
