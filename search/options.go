package search

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/config"
	"github.com/joshuafuller/ssdp/internal/errors"
)

// Option is a functional option for configuring a Searcher. Options are
// applied in order by New; the resulting configuration is validated once
// all of them ran.
//
// Example:
//
//	s, err := search.New(
//	    search.WithBindAddresses("192.168.1.10"),
//	    search.WithDeadlineMargin(time.Second),
//	    search.WithLogger(logger),
//	)
type Option func(*Searcher) error

// WithConfig replaces the whole option set, typically with one loaded by
// config.FromEnv. Options given after it still apply.
func WithConfig(cfg config.Config) Option {
	return func(s *Searcher) error {
		s.cfg = cfg
		return nil
	}
}

// WithBindAddresses restricts sockets to the given local addresses.
// A single "auto" selects every usable address.
func WithBindAddresses(addrs ...string) Option {
	return func(s *Searcher) error {
		s.cfg.BindAddresses = addrs
		return nil
	}
}

// WithIPMode restricts the address families searched on.
func WithIPMode(mode config.IPMode) Option {
	return func(s *Searcher) error {
		s.cfg.IPMode = mode
		return nil
	}
}

// WithMulticastTTL sets the IPv4 TTL / IPv6 hop limit of the request.
func WithMulticastTTL(ttl int) Option {
	return func(s *Searcher) error {
		s.cfg.MulticastTTL = ttl
		return nil
	}
}

// WithDeadlineMargin sets how long a search keeps listening after MX
// seconds have elapsed.
func WithDeadlineMargin(d time.Duration) Option {
	return func(s *Searcher) error {
		if d < 0 {
			return &errors.InvalidConfigurationError{Field: "DeadlineMargin", Value: d, Message: "must not be negative"}
		}
		s.cfg.DeadlineMargin = d
		return nil
	}
}

// WithLogger sets the logger. Dropped interfaces and sockets are logged at
// warn level, dropped datagrams at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		s.logger = logger
		return nil
	}
}

// WithClock sets the clock driving search deadlines.
func WithClock(clk clock.Clock) Option {
	return func(s *Searcher) error {
		s.clock = clk
		return nil
	}
}
