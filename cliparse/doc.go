// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: SQLite file URL or PostgreSQL connection string (required)
  - DatabaseType: sqlite or postgres (default: sqlite)
  - ClientOrigins: Browser origins allowed by CORS and websocket upgrades
  - VoteRateLimit, VoteRateWindow: Per-IP vote request budget (default: 30/min)
  - HeartbeatPeriod: Live connection ping interval (default: 30s)
  - LogFormat: text or json
  - TrustProxyHeaders: Take the client IP from forwarding headers (default: false)

# CLI Flags

	-p, --port              Server port
	-d, --database-url      Database URL
	-t, --database-type     sqlite or postgres
	    --client-origin     Allowed origin (repeatable or comma separated)
	    --vote-rate-limit   Votes per IP per window, 0 disables
	    --vote-rate-window  Window length, e.g. 1m
	    --heartbeat         Live ping interval
	    --log-format        text or json
	    --trust-proxy-headers  Honor X-Forwarded-For / X-Real-IP
	-c, --config            YAML config file

# Environment Variables

	PORT, DATABASE_URL, DATABASE_TYPE, CLIENT_ORIGIN, VOTE_RATE_LIMIT,
	VOTE_RATE_WINDOW, LOG_FORMAT, TRUST_PROXY_HEADERS, CONFIG_FILE

LoadDotEnv reads a .env file into the environment first; variables that
are already set keep their value.

# Precedence

Flags beat environment variables, which beat the config file, which beats
the defaults.

# Config File

	port: 3318
	database_url: file:polls.db
	database_type: sqlite
	client_origins: [https://polls.example.com]
	vote_rate_limit: 30
	vote_rate_window: 1m
	heartbeat_period: 30s
	log_format: json
	trust_proxy_headers: true
*/
package cliparse
