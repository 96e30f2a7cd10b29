package config

import (
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddRelayFlags(fs)
	AddPeerFlags(fs)
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Fatalf("Port=%d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.ListenAddr() != ":4000" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr())
	}
	if !reflect.DeepEqual(cfg.STUNServers, DefaultSTUNServers) {
		t.Fatalf("STUNServers=%v, want %v", cfg.STUNServers, DefaultSTUNServers)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Fatalf("ServerURL=%q", cfg.ServerURL)
	}
	if cfg.GetTURNServers() != nil {
		t.Fatalf("expected no TURN servers by default, got %v", cfg.GetTURNServers())
	}
	if cfg.MaxMessagesPerSecond != DefaultMaxMessagesPerSecond {
		t.Fatalf("MaxMessagesPerSecond=%v", cfg.MaxMessagesPerSecond)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("STUN_SERVERS", "stun:stun.example.com:3478, stun:stun2.example.com:3478")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com")

	cfg, err := Load(newFlagSet(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 5000 {
		t.Fatalf("Port=%d, want 5000", cfg.Port)
	}
	want := []string{"stun:stun.example.com:3478", "stun:stun2.example.com:3478"}
	if !reflect.DeepEqual(cfg.STUNServers, want) {
		t.Fatalf("STUNServers=%v, want %v", cfg.STUNServers, want)
	}
	if !cfg.OriginAllowed("https://chat.example.com") {
		t.Fatalf("configured origin rejected")
	}
	if cfg.OriginAllowed("https://evil.example.com") {
		t.Fatalf("unconfigured origin accepted")
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "5000")

	fs := newFlagSet(t)
	if err := fs.Parse([]string{"--port", "6000", "--stun", "stun:flag.example.com:3478"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 6000 {
		t.Fatalf("Port=%d, want 6000", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.STUNServers, []string{"stun:flag.example.com:3478"}) {
		t.Fatalf("STUNServers=%v", cfg.STUNServers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"bad stun uri", []string{"--stun", "http://stun.example.com"}},
		{"port out of range", []string{"--port", "70000"}},
		{"negative rate", []string{"--max-messages-per-second", "-1"}},
		{"relay without turn", []string{"--relay"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFlagSet(t)
			if err := fs.Parse(tc.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			if _, err := Load(fs); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTURNServers(t *testing.T) {
	fs := newFlagSet(t)
	if err := fs.Parse([]string{"--turn", "turn.example.com", "--turn-user", "u", "--turn-pass", "p", "--relay"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(cfg.GetTURNServers()); got != 3 {
		t.Fatalf("len(TURN servers)=%d, want 3", got)
	}
	user, pass := cfg.GetTURNCredentials()
	if user != "u" || pass != "p" {
		t.Fatalf("credentials=%q/%q", user, pass)
	}
}
