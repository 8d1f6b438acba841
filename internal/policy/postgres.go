package policy

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// RuleStore abstracts DB queries for testability.
type RuleStore interface {
	LoadRules(ctx context.Context) ([]ruleRow, error)
}

// ruleRow is one row of the access_rules table.
type ruleRow struct {
	Kind    string // "org", "repo", or "tool"
	Pattern string
}

// sqlRuleStore is the real implementation using *sql.DB.
type sqlRuleStore struct {
	db *sql.DB
}

func (s *sqlRuleStore) LoadRules(ctx context.Context) ([]ruleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, pattern
		FROM access_rules
		WHERE enabled
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ruleRow
	for rows.Next() {
		var r ruleRow
		if err := rows.Scan(&r.Kind, &r.Pattern); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresRuleSource reads additional access rules from the access_rules
// table. Rules are loaded exactly once, before the policy is sealed;
// there is no cache and no refresh because the policy never reloads
// within a session.
type PostgresRuleSource struct {
	store  RuleStore
	logger *zap.Logger
}

// PostgresRuleSourceConfig configures the PostgresRuleSource.
type PostgresRuleSourceConfig struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewPostgresRuleSource creates a new PostgresRuleSource.
func NewPostgresRuleSource(cfg PostgresRuleSourceConfig) *PostgresRuleSource {
	return &PostgresRuleSource{
		store:  &sqlRuleStore{db: cfg.DB},
		logger: cfg.Logger,
	}
}

// newPostgresRuleSourceWithStore creates a source with a custom store (for testing).
func newPostgresRuleSourceWithStore(store RuleStore, logger *zap.Logger) *PostgresRuleSource {
	return &PostgresRuleSource{store: store, logger: logger}
}

// Extend returns a copy of cfg with the stored rules appended. A load
// failure is returned to the caller; startup fails closed rather than
// running with a partial policy.
func (s *PostgresRuleSource) Extend(ctx context.Context, cfg Config) (Config, error) {
	rows, err := s.store.LoadRules(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("load access rules: %w", err)
	}

	out := Config{
		Tools:        append([]string(nil), cfg.Tools...),
		AllowedOrgs:  append([]string(nil), cfg.AllowedOrgs...),
		AllowedRepos: append([]string(nil), cfg.AllowedRepos...),
	}

	for _, r := range rows {
		switch r.Kind {
		case "org":
			out.AllowedOrgs = append(out.AllowedOrgs, r.Pattern)
		case "repo":
			out.AllowedRepos = append(out.AllowedRepos, r.Pattern)
		case "tool":
			// An empty Tools list means the default catalog; materialize
			// it first so a stored tool rule extends rather than replaces.
			if len(out.Tools) == 0 {
				out.Tools = append(out.Tools, defaultTools...)
			}
			out.Tools = append(out.Tools, r.Pattern)
		default:
			s.logger.Warn("ignoring access rule with unknown kind",
				zap.String("kind", r.Kind),
				zap.String("pattern", r.Pattern),
			)
		}
	}

	s.logger.Info("access rules loaded from postgres",
		zap.Int("rule_count", len(rows)),
	)
	return out, nil
}
