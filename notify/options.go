package notify

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/joshuafuller/ssdp/config"
)

// settings is shared by Listener and Announcer.
type settings struct {
	cfg    config.Config
	logger *zap.Logger
	clock  clock.Clock
	types  map[string]struct{}

	// Duplicate suppression; disabled when dedupeSize is zero.
	dedupeSize   int
	dedupeWindow time.Duration
}

// Option configures a Listener or an Announcer.
type Option func(*settings) error

// WithConfig replaces the whole option set.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) error {
		s.cfg = cfg
		return nil
	}
}

// WithBindAddresses restricts sockets to the given local addresses.
func WithBindAddresses(addrs ...string) Option {
	return func(s *settings) error {
		s.cfg.BindAddresses = addrs
		return nil
	}
}

// WithIPMode restricts the address families used.
func WithIPMode(mode config.IPMode) Option {
	return func(s *settings) error {
		s.cfg.IPMode = mode
		return nil
	}
}

// WithMulticastTTL sets the TTL of announcements.
func WithMulticastTTL(ttl int) Option {
	return func(s *settings) error {
		s.cfg.MulticastTTL = ttl
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		s.logger = logger
		return nil
	}
}

// WithClock sets the clock used to timestamp notifications.
func WithClock(clk clock.Clock) Option {
	return func(s *settings) error {
		s.clock = clk
		return nil
	}
}

// WithNotificationTypes makes a Listener yield only notifications whose NT
// is one of nts. Matching is exact. Announcers ignore it.
func WithNotificationTypes(nts ...string) Option {
	return func(s *settings) error {
		if s.types == nil {
			s.types = make(map[string]struct{}, len(nts))
		}
		for _, nt := range nts {
			s.types[nt] = struct{}{}
		}
		return nil
	}
}

// WithDuplicateSuppression makes a Listener drop a notification whose USN
// and NTS match one it yielded less than window ago. Devices repeat each
// announcement several times and, on multi-homed hosts, it arrives once per
// interface. At most size distinct (USN, NTS) pairs are remembered; the
// least recently seen is forgotten first. Announcers ignore it.
func WithDuplicateSuppression(size int, window time.Duration) Option {
	return func(s *settings) error {
		if size <= 0 {
			return &InvalidConfigurationError{Field: "DuplicateSuppression.Size", Value: size, Message: "must be positive"}
		}
		if window <= 0 {
			return &InvalidConfigurationError{Field: "DuplicateSuppression.Window", Value: window, Message: "must be positive"}
		}
		s.dedupeSize = size
		s.dedupeWindow = window
		return nil
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		cfg:    config.Default(),
		logger: zap.NewNop(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
