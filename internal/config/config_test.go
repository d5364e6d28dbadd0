package config

import (
	"io"
	"net/netip"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, env(nil), io.Discard)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8081 || cfg.DBPath != "votes.db" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.IPCompat || !cfg.FailOpen {
		t.Error("expected IP compatibility and fail-open on by default")
	}
	if cfg.RedisURL != "" || cfg.JWTSecret != "" {
		t.Error("expected redis and voter tokens off by default")
	}
	if len(cfg.FixedResetHosts) != 1 || cfg.FixedResetHosts[0] != "gtop100.com" {
		t.Errorf("unexpected fixed reset hosts %v", cfg.FixedResetHosts)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Errorf("expected no trusted proxies by default, got %v", cfg.TrustedProxies)
	}
	if cfg.Addr() != ":8081" {
		t.Errorf("expected :8081, got %q", cfg.Addr())
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/London" {
		t.Errorf("expected Europe/London, got %v (%v)", loc, err)
	}
}

func TestLoad_EnvironmentFallback(t *testing.T) {
	cfg, err := Load(nil, env(map[string]string{
		"VOTE_PORT":              "9000",
		"VOTE_REDIS":             "redis://localhost:6379/2",
		"VOTE_FAILOPEN":          "false",
		"VOTE_VERIFY_TIMEOUT":    "750ms",
		"VOTE_FIXED_RESET_HOSTS": "gtop100.com, daily.example.com ,",
		"VOTE_TRUSTED_PROXIES":   "10.0.0.0/8, 127.0.0.1",
	}), io.Discard)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port from env, got %d", cfg.Port)
	}
	if cfg.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("expected redis url from env, got %q", cfg.RedisURL)
	}
	if cfg.FailOpen {
		t.Error("expected fail-open disabled from env")
	}
	if cfg.VerifyTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.VerifyTimeout)
	}
	if len(cfg.FixedResetHosts) != 2 || cfg.FixedResetHosts[1] != "daily.example.com" {
		t.Errorf("unexpected hosts %v", cfg.FixedResetHosts)
	}
	want := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("127.0.0.1/32")}
	if len(cfg.TrustedProxies) != len(want) || cfg.TrustedProxies[0] != want[0] || cfg.TrustedProxies[1] != want[1] {
		t.Errorf("expected trusted proxies %v, got %v", want, cfg.TrustedProxies)
	}
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	cfg, err := Load([]string{"-port", "7000", "-ipcompat=false", "-jwtsecret", "s3cret"},
		env(map[string]string{"VOTE_PORT": "9000", "VOTE_IPCOMPAT": "true"}), io.Discard)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 7000 {
		t.Errorf("expected flag to win, got %d", cfg.Port)
	}
	if cfg.IPCompat {
		t.Error("expected -ipcompat=false to win")
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("expected jwt secret from flag, got %q", cfg.JWTSecret)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{"bad env int", nil, map[string]string{"VOTE_PORT": "eighty"}, "VOTE_PORT"},
		{"bad env bool", nil, map[string]string{"VOTE_FAILOPEN": "maybe"}, "VOTE_FAILOPEN"},
		{"bad env duration", nil, map[string]string{"VOTE_PINGBACK_TTL": "soon"}, "VOTE_PINGBACK_TTL"},
		{"port out of range", []string{"-port", "70000"}, nil, "invalid port"},
		{"bad log format", []string{"-logformat", "xml"}, nil, "invalid log format"},
		{"bad timezone", []string{"-reset-tz", "Mars/Olympus"}, nil, "invalid reset timezone"},
		{"zero duration", []string{"-sweep-interval", "0s"}, nil, "sweep-interval must be positive"},
		{"bad trusted proxy", []string{"-trusted-proxies", "10.0.0.0/8,proxy.local"}, nil, "invalid -trusted-proxies"},
		{"bad trusted cidr", []string{"-trusted-proxies", "10.0.0.0/33"}, nil, "invalid -trusted-proxies"},
		{"unknown flag", []string{"-nope"}, nil, "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args, env(tt.env), io.Discard)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("fixed-reset-hosts"); got != "VOTE_FIXED_RESET_HOSTS" {
		t.Errorf("expected VOTE_FIXED_RESET_HOSTS, got %q", got)
	}
}

func TestParsePrefixes(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"empty", nil, nil},
		{"cidr masked", []string{"192.168.1.7/24"}, []string{"192.168.1.0/24"}},
		{"bare ipv4", []string{"203.0.113.5"}, []string{"203.0.113.5/32"}},
		{"bare ipv6", []string{"2001:db8::1"}, []string{"2001:db8::1/128"}},
		{"mapped ipv4", []string{"::ffff:203.0.113.5"}, []string{"203.0.113.5/32"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrefixes(tt.input)
			if err != nil {
				t.Fatalf("ParsePrefixes failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i, p := range got {
				if p.String() != tt.want[i] {
					t.Errorf("expected %s, got %s", tt.want[i], p)
				}
			}
		})
	}
}
