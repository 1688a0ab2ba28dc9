// Package config holds the options shared by the search and notify engines
// and loads them from the environment.
//
// Every variable is prefixed, SSDP_ by default:
//
//	SSDP_BIND_ADDRESSES    "auto" or a comma-separated list of local addresses
//	SSDP_MULTICAST_TTL     IPv4 TTL / IPv6 hop limit of outgoing multicast (4)
//	SSDP_RECV_BUFFER_SIZE  SO_RCVBUF applied to every socket (65536)
//	SSDP_IP_MODE           any, v4 or v6 (any)
//	SSDP_GROUP_PORT        SSDP group port (1900)
//	SSDP_DEADLINE_MARGIN   time a search keeps listening after MX (500ms)
package config

import (
	goerrors "errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/netif"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// DefaultPrefix is the environment variable prefix used by FromEnv.
const DefaultPrefix = "SSDP"

// Auto selects every usable local address.
const Auto = "auto"

// IPMode restricts the address families sockets are opened on.
type IPMode string

const (
	IPModeAny IPMode = "any"
	IPModeV4  IPMode = "v4"
	IPModeV6  IPMode = "v6"
)

// Config is the option set of an engine.
type Config struct {
	BindAddresses  []string      `envconfig:"BIND_ADDRESSES" default:"auto"`
	MulticastTTL   int           `envconfig:"MULTICAST_TTL" default:"4"`
	RecvBufferSize int           `envconfig:"RECV_BUFFER_SIZE" default:"65536"`
	IPMode         IPMode        `envconfig:"IP_MODE" default:"any"`
	Port           int           `envconfig:"GROUP_PORT" default:"1900"`
	DeadlineMargin time.Duration `envconfig:"DEADLINE_MARGIN" default:"500ms"`
}

// Default returns the configuration used when no options are given.
func Default() Config {
	return Config{
		BindAddresses:  []string{Auto},
		MulticastTTL:   protocol.DefaultMulticastTTL,
		RecvBufferSize: protocol.DefaultRecvBufferSize,
		IPMode:         IPModeAny,
		Port:           protocol.Port,
		DeadlineMargin: protocol.DefaultDeadlineMargin,
	}
}

// FromEnv reads the configuration from variables named prefix_NAME and
// validates it. An empty prefix means DefaultPrefix.
func FromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, &errors.InvalidConfigurationError{Field: prefix, Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the given dotenv files into the environment, then calls
// FromEnv. Missing files are ignored; variables already set win over file
// values.
func Load(prefix string, files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !goerrors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(prefix)
}

// Validate checks every field and returns the first problem as an
// InvalidConfigurationError.
func (c Config) Validate() error {
	if len(c.BindAddresses) == 0 {
		return &errors.InvalidConfigurationError{Field: "BindAddresses", Message: `must be "auto" or a list of addresses`}
	}
	if _, err := c.explicitAddresses(); err != nil {
		return err
	}
	if c.MulticastTTL < 1 || c.MulticastTTL > 255 {
		return &errors.InvalidConfigurationError{Field: "MulticastTTL", Value: c.MulticastTTL, Message: "must be between 1 and 255"}
	}
	if c.RecvBufferSize <= 0 {
		return &errors.InvalidConfigurationError{Field: "RecvBufferSize", Value: c.RecvBufferSize, Message: "must be positive"}
	}
	switch c.IPMode {
	case IPModeAny, IPModeV4, IPModeV6:
	default:
		return &errors.InvalidConfigurationError{Field: "IPMode", Value: c.IPMode, Message: "must be any, v4 or v6"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &errors.InvalidConfigurationError{Field: "Port", Value: c.Port, Message: "must be between 1 and 65535"}
	}
	if c.DeadlineMargin < 0 {
		return &errors.InvalidConfigurationError{Field: "DeadlineMargin", Value: c.DeadlineMargin, Message: "must not be negative"}
	}
	return nil
}

// IsAuto reports whether addresses are discovered from the interfaces.
func (c Config) IsAuto() bool {
	return len(c.BindAddresses) == 1 && strings.EqualFold(strings.TrimSpace(c.BindAddresses[0]), Auto)
}

// Addresses resolves BindAddresses to the local addresses sockets are
// opened on, honoring IPMode.
func (c Config) Addresses() ([]netip.Addr, error) {
	if !c.IsAuto() {
		return c.explicitAddresses()
	}

	found, err := netif.Addresses(c.family())
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(found))
	for _, a := range found {
		addrs = append(addrs, a.Addr)
	}
	return addrs, nil
}

// explicitAddresses parses a non-auto BindAddresses list.
func (c Config) explicitAddresses() ([]netip.Addr, error) {
	if c.IsAuto() {
		return nil, nil
	}

	addrs := make([]netip.Addr, 0, len(c.BindAddresses))
	for _, s := range c.BindAddresses {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, Auto) {
			return nil, &errors.InvalidConfigurationError{Field: "BindAddresses", Value: c.BindAddresses, Message: `"auto" cannot be combined with addresses`}
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, &errors.InvalidConfigurationError{Field: "BindAddresses", Value: s, Message: "not an IP address"}
		}
		addr = addr.Unmap()
		if c.IPMode == IPModeV4 && !addr.Is4() || c.IPMode == IPModeV6 && !addr.Is6() {
			return nil, &errors.InvalidConfigurationError{Field: "BindAddresses", Value: s, Message: "does not match IPMode " + string(c.IPMode)}
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (c Config) family() netif.Family {
	switch c.IPMode {
	case IPModeV4:
		return netif.FamilyIPv4
	case IPModeV6:
		return netif.FamilyIPv6
	default:
		return netif.FamilyAny
	}
}
