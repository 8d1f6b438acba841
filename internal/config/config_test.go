package config

import (
	"errors"
	"slices"
	"testing"
)

func TestFromEnv_RequiresToken(t *testing.T) {
	t.Setenv("GITHUB_PERSONAL_ACCESS_TOKEN", "")
	if _, err := FromEnv(); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("GITHUB_PERSONAL_ACCESS_TOKEN", "ghp_test")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "ghp_test" {
		t.Fatalf("unexpected token %q", cfg.Token)
	}
	if cfg.Tools != nil {
		t.Fatalf("unset GITHUB_TOOLS must stay nil (default catalog), got %v", cfg.Tools)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
	if !slices.Equal(cfg.UpstreamArgv, []string{"github-mcp-server", "stdio"}) {
		t.Fatalf("unexpected upstream argv: %v", cfg.UpstreamArgv)
	}
}

func TestFromEnv_ParsesLists(t *testing.T) {
	t.Setenv("GITHUB_PERSONAL_ACCESS_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TOOLS", "get_me, create_branch ,,")
	t.Setenv("ALLOWED_ORGS", "myorg,partner-*")
	t.Setenv("ALLOWED_REPOS", " other/specific-repo ")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Tools, []string{"get_me", "create_branch"}) {
		t.Fatalf("unexpected tools: %v", cfg.Tools)
	}
	if !slices.Equal(cfg.AllowedOrgs, []string{"myorg", "partner-*"}) {
		t.Fatalf("unexpected orgs: %v", cfg.AllowedOrgs)
	}
	if !slices.Equal(cfg.AllowedRepos, []string{"other/specific-repo"}) {
		t.Fatalf("unexpected repos: %v", cfg.AllowedRepos)
	}
}

func TestFromEnv_UpstreamOverride(t *testing.T) {
	t.Setenv("GITHUB_PERSONAL_ACCESS_TOKEN", "ghp_test")
	t.Setenv("MCP_FILTER_UPSTREAM", "/usr/local/bin/github-mcp-server stdio --read-only")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/usr/local/bin/github-mcp-server", "stdio", "--read-only"}
	if !slices.Equal(cfg.UpstreamArgv, want) {
		t.Fatalf("unexpected upstream argv: %v", cfg.UpstreamArgv)
	}
}
