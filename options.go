package gatecache

import (
	"fmt"
	"io"
	"time"

	"github.com/sandrolain/gatecache/metrics"
)

// Option configures a Gateway. Use the With* functions to create Options.
type Option func(*Gateway) error

// WithMetaStore sets the metadata store.
func WithMetaStore(ms MetaStore) Option {
	return func(g *Gateway) error {
		if ms == nil {
			return fmt.Errorf("meta store cannot be nil")
		}
		g.meta = ms
		return nil
	}
}

// WithEntityStore sets the entity store. Apply it before options that wrap
// the entity store, such as WithEntityEncryption.
func WithEntityStore(es EntityStore) Option {
	return func(g *Gateway) error {
		if es == nil {
			return fmt.Errorf("entity store cannot be nil")
		}
		g.entity = es
		return nil
	}
}

// WithLogger sets the logger used for the per-request event trace.
func WithLogger(l *Logger) Option {
	return func(g *Gateway) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		g.logger = l
		return nil
	}
}

// WithErrorStream redirects log output to w, keeping the current verbose
// setting.
func WithErrorStream(w io.Writer) Option {
	return func(g *Gateway) error {
		g.logger = NewLogger(w, g.logger.Verbose())
		return nil
	}
}

// WithVerbose gates trace-severity log lines.
func WithVerbose(verbose bool) Option {
	return func(g *Gateway) error {
		g.logger.SetVerbose(verbose)
		return nil
	}
}

// WithDefaultTTL sets the freshness lifetime applied to stored responses
// that carry neither max-age nor Expires. An unparsable max-age or Expires
// gives a zero lifetime; the default TTL does not replace it.
// Default: 0 (such responses are immediately stale)
func WithDefaultTTL(d time.Duration) Option {
	return func(g *Gateway) error {
		if d < 0 {
			return fmt.Errorf("default TTL cannot be negative")
		}
		g.defaultTTL = d
		return nil
	}
}

// WithPrivateHeaders replaces the request headers whose presence makes a
// request private and therefore uncacheable by this shared cache.
// Default: Authorization and Cookie
func WithPrivateHeaders(names ...string) Option {
	return func(g *Gateway) error {
		g.privateHeaders = append([]string(nil), names...)
		return nil
	}
}

// WithPassOnNoCacheRequest makes the gateway pass requests that carry
// Cache-Control: no-cache (or an equivalent Pragma) straight to the origin.
// Default: false (the directive is ignored on the request side)
func WithPassOnNoCacheRequest(pass bool) Option {
	return func(g *Gateway) error {
		g.passOnNoCacheRequest = pass
		return nil
	}
}

// WithStaleOnError serves a stale stored entry, marked with a Warning
// header, when revalidation fails with a transport error or a 5xx.
// Default: false (origin errors surface to the caller)
func WithStaleOnError(serve bool) Option {
	return func(g *Gateway) error {
		g.staleOnError = serve
		return nil
	}
}

// WithCollector sets the metrics collector.
// Default: a no-op collector
func WithCollector(c metrics.Collector) Option {
	return func(g *Gateway) error {
		if c == nil {
			return fmt.Errorf("collector cannot be nil")
		}
		g.collector = c
		return nil
	}
}

// WithResilience configures retry and circuit-breaker policies around the
// origin fetch. A nil config leaves the origin called exactly once per
// transition.
func WithResilience(rc *ResilienceConfig) Option {
	return func(g *Gateway) error {
		g.resilience = rc
		return nil
	}
}

// WithEntityEncryption wraps the entity store with AES-256-GCM encryption,
// deriving the key from passphrase with scrypt. The configured entity store
// must support keyed writes; apply this after WithEntityStore.
func WithEntityEncryption(passphrase string) Option {
	return func(g *Gateway) error {
		ks, ok := g.entity.(KeyedEntityStore)
		if !ok {
			return fmt.Errorf("entity store %T does not support keyed writes", g.entity)
		}
		es, err := NewEncryptedEntityStore(ks, passphrase)
		if err != nil {
			return err
		}
		g.entity = es
		return nil
	}
}
