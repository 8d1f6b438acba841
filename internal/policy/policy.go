// Package policy implements the access policy evaluated against every
// tools/call request: a tool allowlist with a permanent blocklist, and
// glob-based org/repo access restrictions.
//
// A Policy is built once at startup and never mutated afterwards, so it
// is safe to share between the pump's concurrent stream loops without
// locking.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Mode reports whether org/repo restrictions are active.
type Mode string

const (
	// ModePassthrough means no org/repo patterns are configured; access
	// control defers to the upstream token's own scoping.
	ModePassthrough Mode = "passthrough"
	// ModeRestricted means at least one org or repo pattern is set.
	ModeRestricted Mode = "restricted"
)

// Decision is the outcome of evaluating a single tool call.
type Decision int

const (
	Forward Decision = iota
	SyntheticHandled
	RejectToolBlocked
	RejectToolNotAllowed
	RejectOwnerRequired
	RejectAccessDenied
)

func (d Decision) String() string {
	switch d {
	case Forward:
		return "forward"
	case SyntheticHandled:
		return "synthetic"
	case RejectToolBlocked:
		return "reject_tool_blocked"
	case RejectToolNotAllowed:
		return "reject_tool_not_allowed"
	case RejectOwnerRequired:
		return "reject_owner_required"
	case RejectAccessDenied:
		return "reject_access_denied"
	default:
		return "unknown"
	}
}

// ToolCall is one parsed tools/call request as seen by the policy: the
// tool name plus the only two arguments the filter inspects.
type ToolCall struct {
	Name  string
	Owner string
	Repo  string
}

// Config is the raw policy input, assembled from the environment and
// optionally extended from Postgres before New seals it.
type Config struct {
	// Tools is the explicit allowlist. Empty means the default catalog.
	Tools []string
	// AllowedOrgs and AllowedRepos are ordered glob pattern lists
	// ("myorg", "partner-*", "myorg/infra-*").
	AllowedOrgs  []string
	AllowedRepos []string
}

// pattern pairs a compiled glob with its source text for the policy
// document.
type pattern struct {
	text string
	g    glob.Glob
}

// Policy is the immutable evaluator. Construct with New.
type Policy struct {
	mode         Mode
	allowedTools map[string]struct{}
	orgPatterns  []pattern
	repoPatterns []pattern
}

// New builds a Policy from cfg. The permanent blocklist is subtracted
// from the allowlist unconditionally, even when a blocked tool is listed
// explicitly. Invalid glob patterns are a construction error.
func New(cfg Config) (*Policy, error) {
	tools := cfg.Tools
	if len(tools) == 0 {
		tools = defaultTools
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, hard := blockedTools[t]; hard {
			continue
		}
		allowed[t] = struct{}{}
	}

	orgs, err := compilePatterns(cfg.AllowedOrgs)
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_ORGS: %w", err)
	}
	repos, err := compilePatterns(cfg.AllowedRepos)
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_REPOS: %w", err)
	}

	mode := ModePassthrough
	if len(orgs) > 0 || len(repos) > 0 {
		mode = ModeRestricted
	}

	return &Policy{
		mode:         mode,
		allowedTools: allowed,
		orgPatterns:  orgs,
		repoPatterns: repos,
	}, nil
}

func compilePatterns(raw []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// No separator runes: "*" crosses "/" so repo patterns match the
		// composite owner/repo string, same as fnmatch.
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, pattern{text: p, g: g})
	}
	return out, nil
}

// Mode returns passthrough or restricted.
func (p *Policy) Mode() Mode { return p.mode }

// EvaluateTool reports whether name is on the effective allowlist.
// Permanently blocked tools are always false.
func (p *Policy) EvaluateTool(name string) bool {
	if _, hard := blockedTools[name]; hard {
		return false
	}
	_, ok := p.allowedTools[name]
	return ok
}

// EvaluateAccess reports whether the owner/repo combination is permitted.
// Tools that carry no owner/repo context are always permitted; a repo
// supplied without an owner is always rejected when restrictions are
// active (ambiguous, fails closed).
func (p *Policy) EvaluateAccess(owner, repo string) bool {
	if p.mode == ModePassthrough {
		return true
	}
	if owner == "" && repo == "" {
		return true
	}
	if owner == "" {
		return false
	}
	for _, pat := range p.orgPatterns {
		if pat.g.Match(owner) {
			return true
		}
	}
	if repo != "" {
		full := owner + "/" + repo
		for _, pat := range p.repoPatterns {
			if pat.g.Match(full) {
				return true
			}
		}
	}
	return false
}

// Evaluate applies the full decision order to a tool call: permanent
// blocklist, then allowlist, then the search-tool exemption, then the
// owner/repo access check. The pump answers the synthetic tool before
// consulting the policy, so it never reaches here.
func (p *Policy) Evaluate(call ToolCall) Decision {
	if _, hard := blockedTools[call.Name]; hard {
		return RejectToolBlocked
	}
	if _, ok := p.allowedTools[call.Name]; !ok {
		return RejectToolNotAllowed
	}
	if strings.HasPrefix(call.Name, searchToolPrefix) {
		return Forward
	}
	if p.EvaluateAccess(call.Owner, call.Repo) {
		return Forward
	}
	if call.Repo != "" && call.Owner == "" {
		return RejectOwnerRequired
	}
	return RejectAccessDenied
}

// Document is the synthetic get_access_policy response payload.
type Document struct {
	Mode         string   `json:"mode"`
	AllowedOrgs  []string `json:"allowed_orgs"`
	AllowedRepos []string `json:"allowed_repos"`
	AllowedTools []string `json:"allowed_tools"`
	BlockedTools []string `json:"blocked_tools"`
}

// Document returns a snapshot of the active policy. Tool sets are sorted;
// pattern lists keep their configured order.
func (p *Policy) Document() Document {
	tools := make([]string, 0, len(p.allowedTools))
	for t := range p.allowedTools {
		tools = append(tools, t)
	}
	sort.Strings(tools)

	blocked := make([]string, 0, len(blockedTools))
	for t := range blockedTools {
		blocked = append(blocked, t)
	}
	sort.Strings(blocked)

	orgs := make([]string, 0, len(p.orgPatterns))
	for _, pat := range p.orgPatterns {
		orgs = append(orgs, pat.text)
	}
	repos := make([]string, 0, len(p.repoPatterns))
	for _, pat := range p.repoPatterns {
		repos = append(repos, pat.text)
	}

	return Document{
		Mode:         string(p.mode),
		AllowedOrgs:  orgs,
		AllowedRepos: repos,
		AllowedTools: tools,
		BlockedTools: blocked,
	}
}
