package rtc

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

// Config is the host-supplied configuration. It is read from JSON that may
// carry // and /* */ comments and trailing commas.
type Config struct {
	ContextID     int    `json:"contextId,omitempty"`
	BatchCapacity *int   `json:"batchCapacity,omitempty"`
	LogLevel      string `json:"logLevel,omitempty"`

	EphemeralUDPPortMin *uint16 `json:"ephemeralUdpPortMin,omitempty"`
	EphemeralUDPPortMax *uint16 `json:"ephemeralUdpPortMax,omitempty"`

	ICEServers []native.ICEServer `json:"iceServers,omitempty"`
}

// ParseConfig parses data and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var conf Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &conf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	conf.withDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	conf, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

func (c *Config) withDefaults() {
	if c.BatchCapacity == nil {
		n := DefaultBatchCapacity
		c.BatchCapacity = &n
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.EphemeralUDPPortMin == nil {
		lo := uint16(1)
		c.EphemeralUDPPortMin = &lo
	}
	if c.EphemeralUDPPortMax == nil {
		hi := uint16(65535)
		c.EphemeralUDPPortMax = &hi
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.BatchCapacity != nil && *c.BatchCapacity < 0 {
		return fmt.Errorf("batchCapacity: must not be negative, got %d", *c.BatchCapacity)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
	}
	if c.EphemeralUDPPortMin != nil && c.EphemeralUDPPortMax != nil &&
		*c.EphemeralUDPPortMin > *c.EphemeralUDPPortMax {
		return fmt.Errorf("ephemeral udp port range %d-%d is empty",
			*c.EphemeralUDPPortMin, *c.EphemeralUDPPortMax)
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("iceServers[%d]: no urls", i)
		}
	}
	return nil
}

// PortRange returns the ephemeral UDP port range, defaults applied.
func (c *Config) PortRange() (lo, hi uint16) {
	lo, hi = 1, 65535
	if c.EphemeralUDPPortMin != nil {
		lo = *c.EphemeralUDPPortMin
	}
	if c.EphemeralUDPPortMax != nil {
		hi = *c.EphemeralUDPPortMax
	}
	return lo, hi
}

// Options converts the config into context options.
func (c *Config) Options() []Option {
	opts := []Option{WithID(c.ContextID)}
	if c.BatchCapacity != nil {
		opts = append(opts, WithBatchCapacity(*c.BatchCapacity))
	}
	return opts
}

// PeerConnectionConfig returns the peer connection settings of the config.
func (c *Config) PeerConnectionConfig() native.PeerConnectionConfig {
	return native.PeerConnectionConfig{
		ICEServers: append([]native.ICEServer(nil), c.ICEServers...),
	}
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.LogLevel != "" {
		l, err := zapcore.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("logLevel: %w", err)
		}
		level = l
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
