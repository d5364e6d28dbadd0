// Package config loads the server configuration from command line flags.
// Every flag falls back to a VOTE_ prefixed environment variable, then to
// its built-in default.
package config

import (
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abrezinsky/voterewards/pkg/ipcompat"
)

// EnvPrefix prefixes the environment variable of every flag
const EnvPrefix = "VOTE_"

// Config holds the server configuration
type Config struct {
	Port          int
	DBPath        string
	AdminPassword string
	LogLevel      string
	LogFormat     string
	HTTPLog       bool

	// RedisURL selects the Redis cooldown and pingback stores; empty keeps them in memory
	RedisURL      string
	VerifiersPath string
	// Secret seals public server ids; empty uses a generated secret stored in the database
	Secret    string
	JWTSecret string
	TokenTTL  time.Duration

	IPCompat        bool
	IPCompatURL     string
	FailOpen        bool
	VerifyTimeout   time.Duration
	PingbackTTL     time.Duration
	ResetTZ         string
	FixedResetHosts []string

	// TrustedProxies may set the voter address through forwarding headers
	TrustedProxies []netip.Prefix

	LeaderboardInterval time.Duration
	SweepInterval       time.Duration

	ShowVersion bool
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:                8081,
		DBPath:              "votes.db",
		LogLevel:            "info",
		LogFormat:           "text",
		TokenTTL:            24 * time.Hour,
		IPCompat:            true,
		IPCompatURL:         ipcompat.DefaultBaseURL,
		FailOpen:            true,
		VerifyTimeout:       5 * time.Second,
		PingbackTTL:         10 * time.Minute,
		ResetTZ:             "Europe/London",
		FixedResetHosts:     []string{"gtop100.com"},
		LeaderboardInterval: 30 * time.Second,
		SweepInterval:       time.Minute,
	}
}

// Load parses args (without the program name). getenv may be nil to use os.Getenv.
func Load(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := envDefaults{getenv: getenv}
	cfg := Default()

	fs := flag.NewFlagSet("voterewards", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	fs.IntVar(&cfg.Port, "port", env.integer("port", cfg.Port), "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", env.str("db", cfg.DBPath), "SQLite database path")
	fs.StringVar(&cfg.AdminPassword, "adminpw", env.str("adminpw", ""), "Admin password (auto-generated if not set)")
	fs.StringVar(&cfg.LogLevel, "loglevel", env.str("loglevel", cfg.LogLevel), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "logformat", env.str("logformat", cfg.LogFormat), "Log format (text, json)")
	fs.BoolVar(&cfg.HTTPLog, "httplog", env.boolean("httplog", false), "Log every HTTP request")
	fs.StringVar(&cfg.RedisURL, "redis", env.str("redis", ""), "Redis URL for cooldowns and pingbacks (in-memory if not set)")
	fs.StringVar(&cfg.VerifiersPath, "verifiers", env.str("verifiers", ""), "JSON file of vote verifier definitions")
	fs.StringVar(&cfg.Secret, "secret", env.str("secret", ""), "Secret sealing public server ids (stored in the database if not set)")
	fs.StringVar(&cfg.JWTSecret, "jwtsecret", env.str("jwtsecret", ""), "HS256 secret for voter tokens (voter tokens disabled if not set)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", env.duration("token-ttl", cfg.TokenTTL), "Voter token lifetime")
	fs.BoolVar(&cfg.IPCompat, "ipcompat", env.boolean("ipcompat", cfg.IPCompat), "Expand voter IPs to their IPv4/IPv6 siblings before verification")
	fs.StringVar(&cfg.IPCompatURL, "ipcompat-url", env.str("ipcompat-url", cfg.IPCompatURL), "IP compatibility service base URL")
	fs.BoolVar(&cfg.FailOpen, "failopen", env.boolean("failopen", cfg.FailOpen), "Admit votes when the verification API cannot be reached")
	fs.DurationVar(&cfg.VerifyTimeout, "verify-timeout", env.duration("verify-timeout", cfg.VerifyTimeout), "Timeout of each verification request")
	fs.DurationVar(&cfg.PingbackTTL, "pingback-ttl", env.duration("pingback-ttl", cfg.PingbackTTL), "How long a received pingback stays valid")
	fs.StringVar(&cfg.ResetTZ, "reset-tz", env.str("reset-tz", cfg.ResetTZ), "Timezone of daily resets and monthly statistics")
	hosts := fs.String("fixed-reset-hosts", env.str("fixed-reset-hosts", strings.Join(cfg.FixedResetHosts, ",")), "Comma-separated sites whose cooldown resets daily")
	proxies := fs.String("trusted-proxies", env.str("trusted-proxies", ""), "Comma-separated proxy addresses or CIDRs whose forwarding headers are trusted")
	fs.DurationVar(&cfg.LeaderboardInterval, "leaderboard-interval", env.duration("leaderboard-interval", cfg.LeaderboardInterval), "Interval of websocket leaderboard pushes")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", env.duration("sweep-interval", cfg.SweepInterval), "Interval of expired in-memory cooldown cleanup")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if env.err != nil {
		return nil, env.err
	}

	cfg.FixedResetHosts = splitList(*hosts)
	prefixes, err := ParsePrefixes(splitList(*proxies))
	if err != nil {
		return nil, fmt.Errorf("invalid -trusted-proxies: %w", err)
	}
	cfg.TrustedProxies = prefixes
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid reset timezone %q: %w", c.ResetTZ, err)
	}
	for name, d := range map[string]time.Duration{
		"verify-timeout":       c.VerifyTimeout,
		"pingback-ttl":         c.PingbackTTL,
		"token-ttl":            c.TokenTTL,
		"leaderboard-interval": c.LeaderboardInterval,
		"sweep-interval":       c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location loads the reset timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ResetTZ)
}

// EnvName returns the environment variable of a flag
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// envDefaults reads flag defaults from the environment and keeps the first parse error
type envDefaults struct {
	getenv func(string) string
	err    error
}

func (e *envDefaults) lookup(name string) (string, bool) {
	v := strings.TrimSpace(e.getenv(EnvName(name)))
	return v, v != ""
}

func (e *envDefaults) fail(name, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", EnvName(name), value, err)
	}
}

func (e *envDefaults) str(name, fallback string) string {
	if v, ok := e.lookup(name); ok {
		return v
	}
	return fallback
}

func (e *envDefaults) integer(name string, fallback int) int {
	v, ok := e.lookup(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return n
}

func (e *envDefaults) boolean(name string, fallback bool) bool {
	v, ok := e.lookup(name)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return b
}

func (e *envDefaults) duration(name string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(name)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return d
}

// ParsePrefixes parses CIDRs and bare addresses, a bare address matching only itself
func ParsePrefixes(list []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(list))
	for _, entry := range list {
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
