// Package config reads the filter's configuration from the process
// environment, once, into a value that is passed down explicitly.
package config

import (
	"errors"
	"os"
	"strings"
)

// defaultUpstreamCommand launches github-mcp-server in stdio mode.
const defaultUpstreamCommand = "github-mcp-server stdio"

// ErrMissingToken is returned when the required upstream credential is
// not set.
var ErrMissingToken = errors.New("config: GITHUB_PERSONAL_ACCESS_TOKEN is required")

// Config is the filter's startup configuration. It is built exactly once
// and never reloaded.
type Config struct {
	// Token is the upstream credential. It is never inspected or logged;
	// the upstream subprocess receives it through the environment.
	Token string

	// Tools is the GITHUB_TOOLS allowlist. Empty means the default catalog.
	Tools []string
	// AllowedOrgs and AllowedRepos are ALLOWED_ORGS / ALLOWED_REPOS glob
	// pattern lists.
	AllowedOrgs  []string
	AllowedRepos []string

	LogLevel      string
	ClickHouseDSN string
	PostgresDSN   string

	// UpstreamArgv is the upstream server command line.
	UpstreamArgv []string
}

// FromEnv builds the configuration from the environment.
func FromEnv() (*Config, error) {
	token := os.Getenv("GITHUB_PERSONAL_ACCESS_TOKEN")
	if token == "" {
		return nil, ErrMissingToken
	}

	return &Config{
		Token:         token,
		Tools:         splitCSV(os.Getenv("GITHUB_TOOLS")),
		AllowedOrgs:   splitCSV(os.Getenv("ALLOWED_ORGS")),
		AllowedRepos:  splitCSV(os.Getenv("ALLOWED_REPOS")),
		LogLevel:      envOrDefault("MCP_FILTER_LOG_LEVEL", "info"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		UpstreamArgv:  strings.Fields(envOrDefault("MCP_FILTER_UPSTREAM", defaultUpstreamCommand)),
	}, nil
}

// splitCSV splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
