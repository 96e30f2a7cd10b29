package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultPort                 = 4000
	DefaultServerURL            = "ws://localhost:4000/ws"
	DefaultMaxMessageBytes      = 64 * 1024 // enough for SDP with many codecs
	DefaultMaxMessagesPerSecond = 50
)

// DefaultSTUNServers is the public STUN pair used for ICE gathering. No TURN
// server is configured unless one is supplied.
var DefaultSTUNServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// DefaultAllowedOrigins accepts websocket upgrades from any origin.
var DefaultAllowedOrigins = []string{"*"}

// Keys double as flag names.
const (
	KeyPort                 = "port"
	KeyAllowedOrigins       = "allowed-origins"
	KeyMaxMessageBytes      = "max-message-bytes"
	KeyMaxMessagesPerSecond = "max-messages-per-second"

	KeyServerURL  = "server"
	KeySTUN       = "stun"
	KeyTURN       = "turn"
	KeyTURNUser   = "turn-user"
	KeyTURNPass   = "turn-pass"
	KeyForceRelay = "relay"
)

var envNames = map[string]string{
	KeyPort:                 "PORT",
	KeyAllowedOrigins:       "ALLOWED_ORIGINS",
	KeyMaxMessageBytes:      "MAX_MESSAGE_BYTES",
	KeyMaxMessagesPerSecond: "MAX_MESSAGES_PER_SECOND",
	KeyServerURL:            "SIGNALING_URL",
	KeySTUN:                 "STUN_SERVERS",
	KeyTURN:                 "TURN_SERVER",
	KeyTURNUser:             "TURN_USERNAME",
	KeyTURNPass:             "TURN_PASSWORD",
	KeyForceRelay:           "FORCE_RELAY",
}

// Config holds relay and peer configuration. Relay fields are ignored by
// the call commands and vice versa.
type Config struct {
	// Relay
	Port                 int
	AllowedOrigins       []string
	MaxMessageBytes      int64
	MaxMessagesPerSecond float64

	// Peer
	ServerURL   string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
}

// AddRelayFlags registers the relay flags on fs.
func AddRelayFlags(fs *pflag.FlagSet) {
	fs.IntP(KeyPort, "p", DefaultPort, "Port to listen on")
	fs.StringSlice(KeyAllowedOrigins, DefaultAllowedOrigins, "Origins allowed to open a websocket")
	fs.Int64(KeyMaxMessageBytes, DefaultMaxMessageBytes, "Maximum size of a signaling message")
	fs.Float64(KeyMaxMessagesPerSecond, DefaultMaxMessagesPerSecond, "Per-connection message rate limit (0 disables)")
}

// AddPeerFlags registers the flags used by the call and answer commands.
func AddPeerFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyServerURL, "S", DefaultServerURL, "Signaling relay websocket URL")
	fs.StringSliceP(KeySTUN, "s", DefaultSTUNServers, "STUN servers")
	fs.StringP(KeyTURN, "t", "", "TURN server host")
	fs.String(KeyTURNUser, "", "TURN username")
	fs.String(KeyTURNPass, "", "TURN password")
	fs.BoolP(KeyForceRelay, "r", false, "Force relay mode")
}

// Load resolves configuration with the following priority:
// 1. Flags set on the command line - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyAllowedOrigins, DefaultAllowedOrigins)
	v.SetDefault(KeyMaxMessageBytes, DefaultMaxMessageBytes)
	v.SetDefault(KeyMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	v.SetDefault(KeyServerURL, DefaultServerURL)
	v.SetDefault(KeySTUN, DefaultSTUNServers)

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{
		Port:                 v.GetInt(KeyPort),
		AllowedOrigins:       splitList(v.GetStringSlice(KeyAllowedOrigins)),
		MaxMessageBytes:      v.GetInt64(KeyMaxMessageBytes),
		MaxMessagesPerSecond: v.GetFloat64(KeyMaxMessagesPerSecond),
		ServerURL:            v.GetString(KeyServerURL),
		STUNServers:          splitList(v.GetStringSlice(KeySTUN)),
		TURNServer:           v.GetString(KeyTURN),
		TURNUser:             v.GetString(KeyTURNUser),
		TURNPass:             v.GetString(KeyTURNPass),
		ForceRelay:           v.GetBool(KeyForceRelay),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and ICE server URIs.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.MaxMessagesPerSecond < 0 {
		return fmt.Errorf("max messages per second must not be negative, got %v", c.MaxMessagesPerSecond)
	}

	for _, s := range c.STUNServers {
		u, err := stun.ParseURI(s)
		if err != nil {
			return fmt.Errorf("invalid STUN server %q: %w", s, err)
		}
		if u.Scheme != stun.SchemeTypeSTUN && u.Scheme != stun.SchemeTypeSTUNS {
			return fmt.Errorf("invalid STUN server %q: scheme %s", s, u.Scheme)
		}
	}

	for _, s := range c.GetTURNServers() {
		if _, err := stun.ParseURI(s); err != nil {
			return fmt.Errorf("invalid TURN server %q: %w", s, err)
		}
	}

	if c.ForceRelay && c.GetTURNServers() == nil {
		return errors.New("cannot force relay mode without TURN server configured")
	}
	return nil
}

// ListenAddr returns the address the relay listens on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetSTUNServers returns STUN server URLs
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// OriginAllowed reports whether a websocket upgrade from origin is accepted.
func (c *Config) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
