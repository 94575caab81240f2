// Package discover identifies the project rooted at a directory from its
// package manifest.
package discover

import "errors"

// errManifestParse reports a manifest that exists but cannot be read.
var errManifestParse = errors.New("unreadable project manifest")

// Ecosystem identifies the package manager or language family.
type Ecosystem string

const (
	// EcosystemGo represents Go modules.
	EcosystemGo Ecosystem = "go"
	// EcosystemJavaScript represents npm-based projects.
	EcosystemJavaScript Ecosystem = "js"
	// EcosystemPython represents Python packages.
	EcosystemPython Ecosystem = "python"
	// EcosystemUnknown marks a project identified by its directory name only.
	EcosystemUnknown Ecosystem = "unknown"
)

// Project describes the repository being summarized.
type Project struct {
	Name        string
	Description string
	Ecosystem   Ecosystem
	Manifest    string
}
