package policy

// defaultTools is the safe default allowlist applied when GITHUB_TOOLS is
// not configured. It covers the github-mcp-server catalog minus anything
// in the permanent blocklist.
var defaultTools = []string{
	"get_file_contents", "list_branches", "list_commits", "get_commit",
	"create_branch", "push_files", "create_or_update_file", "delete_file",
	"create_pull_request", "list_pull_requests", "pull_request_read",
	"pull_request_review_write", "add_comment_to_pending_review",
	"update_pull_request", "update_pull_request_branch",
	"issue_read", "issue_write", "add_issue_comment", "list_issues",
	"list_issue_types", "sub_issue_write",
	"search_code", "search_repositories", "search_pull_requests",
	"search_issues", "search_users",
	"get_status", "get_me", "get_label",
	"fork_repository", "create_repository",
	"get_latest_release", "get_release_by_tag", "list_releases",
	"list_tags", "get_tag",
	"request_copilot_review",
}

// blockedTools can never be enabled, not even by an explicit allowlist
// entry. merge_pull_request stays human-only.
var blockedTools = map[string]struct{}{
	"merge_pull_request": {},
}

// searchToolPrefix marks the free-text search tool family. Their query
// strings carry no owner/repo arguments, so org/repo access checks do not
// apply; token scoping is the backstop.
const searchToolPrefix = "search_"
