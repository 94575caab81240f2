// Package types defines every cross‑package data structure used by recap.
package types

import "time"

// NodeKind distinguishes files from directories.
type NodeKind string

const (
	NodeKindFile      NodeKind = "file"
	NodeKindDirectory NodeKind = "directory"
)

// Verdict records the inclusion decision for a tree node.
type Verdict string

const (
	// VerdictIncluded marks a node that takes part in summarization.
	VerdictIncluded Verdict = "included"
	// VerdictExcluded marks a node removed by an exclusion rule. Excluded
	// directories are never opened.
	VerdictExcluded Verdict = "excluded"
	// VerdictSkipped marks a node that could not be read or was rejected for
	// its content (binary, too large, unreadable link).
	VerdictSkipped Verdict = "skipped"
)

// Role selects the instruction used by the summarizer.
type Role string

const (
	// RoleFile summarizes raw file content.
	RoleFile Role = "file"
	// RoleMerge merges child summaries into a parent summary.
	RoleMerge Role = "merge"
)

// TreeNode is a file or directory discovered by the walker. Path is relative to
// the walk root and uses forward slashes; the root itself has Path ".".
type TreeNode struct {
	Path     string
	Name     string
	Kind     NodeKind
	Verdict  Verdict
	Reason   string
	Children []*TreeNode
}

// IsDirectory reports whether the node is a directory.
func (node *TreeNode) IsDirectory() bool {
	return node.Kind == NodeKindDirectory
}

// SummaryRecord is a persisted summary keyed by fingerprint.
type SummaryRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// AggregateNode mirrors a TreeNode and holds its derived summary. Degraded is
// set when the summary, or any summary it was built from, is a placeholder.
type AggregateNode struct {
	Path        string
	Name        string
	Kind        NodeKind
	Fingerprint string
	Text        string
	Degraded    bool
	CacheHit    bool
	Children    []*AggregateNode
}

// IsDirectory reports whether the aggregate node describes a directory.
func (node *AggregateNode) IsDirectory() bool {
	return node.Kind == NodeKindDirectory
}

// Warning is a non-fatal problem recorded during a run.
type Warning struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}
