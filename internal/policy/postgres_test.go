package policy

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"
)

// stubRuleStore is a test helper returning fixed rows.
type stubRuleStore struct {
	rows []ruleRow
	err  error
}

func (s *stubRuleStore) LoadRules(_ context.Context) ([]ruleRow, error) {
	return s.rows, s.err
}

func TestExtend_MergesPatterns(t *testing.T) {
	store := &stubRuleStore{rows: []ruleRow{
		{Kind: "org", Pattern: "partner-*"},
		{Kind: "repo", Pattern: "myorg/infra-*"},
	}}
	source := newPostgresRuleSourceWithStore(store, zap.NewNop())

	cfg, err := source.Extend(context.Background(), Config{AllowedOrgs: []string{"myorg"}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.AllowedOrgs, []string{"myorg", "partner-*"}) {
		t.Fatalf("unexpected orgs: %v", cfg.AllowedOrgs)
	}
	if !slices.Equal(cfg.AllowedRepos, []string{"myorg/infra-*"}) {
		t.Fatalf("unexpected repos: %v", cfg.AllowedRepos)
	}
}

func TestExtend_ToolRuleExtendsDefaultCatalog(t *testing.T) {
	store := &stubRuleStore{rows: []ruleRow{
		{Kind: "tool", Pattern: "custom_tool"},
	}}
	source := newPostgresRuleSourceWithStore(store, zap.NewNop())

	cfg, err := source.Extend(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !p.EvaluateTool("custom_tool") {
		t.Fatal("stored tool rule must be permitted")
	}
	if !p.EvaluateTool("get_me") {
		t.Fatal("default catalog must survive a stored tool rule")
	}
}

func TestExtend_UnknownKindIgnored(t *testing.T) {
	store := &stubRuleStore{rows: []ruleRow{
		{Kind: "banana", Pattern: "whatever"},
	}}
	source := newPostgresRuleSourceWithStore(store, zap.NewNop())

	cfg, err := source.Extend(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AllowedOrgs) != 0 || len(cfg.AllowedRepos) != 0 || len(cfg.Tools) != 0 {
		t.Fatalf("unknown kind must not change the config: %+v", cfg)
	}
}

func TestExtend_LoadFailureFailsClosed(t *testing.T) {
	store := &stubRuleStore{err: errors.New("connection refused")}
	source := newPostgresRuleSourceWithStore(store, zap.NewNop())

	if _, err := source.Extend(context.Background(), Config{}); err == nil {
		t.Fatal("expected load failure to surface")
	}
}

func TestExtend_DoesNotMutateInput(t *testing.T) {
	store := &stubRuleStore{rows: []ruleRow{{Kind: "org", Pattern: "b"}}}
	source := newPostgresRuleSourceWithStore(store, zap.NewNop())

	in := Config{AllowedOrgs: []string{"a"}}
	if _, err := source.Extend(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(in.AllowedOrgs, []string{"a"}) {
		t.Fatalf("input config mutated: %v", in.AllowedOrgs)
	}
}
