// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 3318
	DefaultDatabaseType    = "sqlite"
	DefaultClientOrigin    = "http://localhost:3000"
	DefaultVoteRateLimit   = 30
	DefaultVoteRateWindow  = time.Minute
	DefaultHeartbeatPeriod = 30 * time.Second

	LogFormatText = "text"
	LogFormatJSON = "json"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	// ClientOrigins may call the API from a browser with credentials and
	// open live connections.
	ClientOrigins []string

	// VoteRateLimit is how many vote requests one IP may send per
	// VoteRateWindow. Zero disables the limit.
	VoteRateLimit  int
	VoteRateWindow time.Duration

	HeartbeatPeriod time.Duration
	LogFormat       string

	// TrustProxyHeaders takes the client address from forwarding headers
	// instead of the transport peer. Only safe behind a proxy that sets them.
	TrustProxyHeaders bool
}

// fileConfig is the YAML config file layout. Every field is optional.
type fileConfig struct {
	Port            int      `yaml:"port"`
	DatabaseURL     string   `yaml:"database_url"`
	DatabaseType    string   `yaml:"database_type"`
	ClientOrigins   []string `yaml:"client_origins"`
	VoteRateLimit   *int     `yaml:"vote_rate_limit"`
	VoteRateWindow  string   `yaml:"vote_rate_window"`
	HeartbeatPeriod string   `yaml:"heartbeat_period"`
	LogFormat       string   `yaml:"log_format"`
	TrustProxy      *bool    `yaml:"trust_proxy_headers"`
}

// LoadDotEnv loads variables from a .env file in the working directory
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ParseFlags builds the config from, highest precedence first: flags,
// environment variables, the YAML config file, defaults.
func ParseFlags(args []string) (Config, error) {
	cfg := Config{
		Port:            DefaultPort,
		DatabaseType:    DefaultDatabaseType,
		ClientOrigins:   []string{DefaultClientOrigin},
		VoteRateLimit:   DefaultVoteRateLimit,
		VoteRateWindow:  DefaultVoteRateWindow,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
		LogFormat:       LogFormatText,
	}

	var (
		flagPort       int
		flagDBURL      string
		flagDBType     string
		flagOrigins    []string
		flagRateLimit  int
		flagRateWindow time.Duration
		flagHeartbeat  time.Duration
		flagLogFormat  string
		flagTrustProxy bool
		configFile     string
	)

	fs := pflag.NewFlagSet("poll-rooms", pflag.ContinueOnError)
	fs.IntVarP(&flagPort, "port", "p", 0, "Server port")
	fs.StringVarP(&flagDBURL, "database-url", "d", "", "Database URL")
	fs.StringVarP(&flagDBType, "database-type", "t", "", "Database type (sqlite or postgres)")
	fs.StringSliceVar(&flagOrigins, "client-origin", nil, "Allowed browser origin (repeatable)")
	fs.IntVar(&flagRateLimit, "vote-rate-limit", 0, "Vote requests allowed per IP per window (0 disables)")
	fs.DurationVar(&flagRateWindow, "vote-rate-window", 0, "Vote rate limit window")
	fs.DurationVar(&flagHeartbeat, "heartbeat", 0, "Live connection ping interval")
	fs.StringVar(&flagLogFormat, "log-format", "", "Log format (text or json)")
	fs.BoolVar(&flagTrustProxy, "trust-proxy-headers", false, "Take client IP from X-Forwarded-For / X-Real-IP")
	fs.StringVarP(&configFile, "config", "c", "", "YAML config file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Config file (lowest precedence above defaults)
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		if err := applyFile(&cfg, configFile); err != nil {
			return Config{}, err
		}
	}

	// Environment variables
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	// Flags
	if fs.Changed("port") {
		cfg.Port = flagPort
	}
	if fs.Changed("database-url") {
		cfg.DatabaseURL = flagDBURL
	}
	if fs.Changed("database-type") {
		cfg.DatabaseType = flagDBType
	}
	if fs.Changed("client-origin") {
		cfg.ClientOrigins = flagOrigins
	}
	if fs.Changed("vote-rate-limit") {
		cfg.VoteRateLimit = flagRateLimit
	}
	if fs.Changed("vote-rate-window") {
		cfg.VoteRateWindow = flagRateWindow
	}
	if fs.Changed("heartbeat") {
		cfg.HeartbeatPeriod = flagHeartbeat
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if fs.Changed("trust-proxy-headers") {
		cfg.TrustProxyHeaders = flagTrustProxy
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.DatabaseType != "" {
		cfg.DatabaseType = fc.DatabaseType
	}
	if len(fc.ClientOrigins) > 0 {
		cfg.ClientOrigins = fc.ClientOrigins
	}
	if fc.VoteRateLimit != nil {
		cfg.VoteRateLimit = *fc.VoteRateLimit
	}
	if fc.VoteRateWindow != "" {
		d, err := time.ParseDuration(fc.VoteRateWindow)
		if err != nil {
			return fmt.Errorf("config file vote_rate_window: %w", err)
		}
		cfg.VoteRateWindow = d
	}
	if fc.HeartbeatPeriod != "" {
		d, err := time.ParseDuration(fc.HeartbeatPeriod)
		if err != nil {
			return fmt.Errorf("config file heartbeat_period: %w", err)
		}
		cfg.HeartbeatPeriod = d
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.TrustProxy != nil {
		cfg.TrustProxyHeaders = *fc.TrustProxy
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return errors.New("invalid PORT env variable")
		}
		cfg.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		cfg.DatabaseType = v
	}
	if v := os.Getenv("CLIENT_ORIGIN"); v != "" {
		cfg.ClientOrigins = splitList(v)
	}
	if v := os.Getenv("VOTE_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("invalid VOTE_RATE_LIMIT env variable")
		}
		cfg.VoteRateLimit = n
	}
	if v := os.Getenv("VOTE_RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("invalid VOTE_RATE_WINDOW env variable")
		}
		cfg.VoteRateWindow = d
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TRUST_PROXY_HEADERS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("invalid TRUST_PROXY_HEADERS env variable")
		}
		cfg.TrustProxyHeaders = b
	}
	return nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	switch c.DatabaseType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q (sqlite or postgres)", c.DatabaseType)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.VoteRateLimit < 0 {
		return errors.New("vote rate limit must not be negative")
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q (text or json)", c.LogFormat)
	}
	return nil
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
