package discover

import (
	"errors"
	"path/filepath"
)

type detector interface {
	Ecosystem() Ecosystem
	Detect(rootPath string) (Project, bool, error)
}

func buildDetectors() []detector {
	return []detector{
		goDetector{},
		javaScriptDetector{},
		pythonDetector{},
	}
}

// Detect returns the first project described by a manifest in rootPath, trying
// Go, then JavaScript, then Python. Without a usable manifest the project is
// named after the directory. Unreadable manifests are reported in the error
// while the returned Project remains usable.
func Detect(rootPath string) (Project, error) {
	var manifestErrors []error
	for _, candidate := range buildDetectors() {
		project, found, detectError := candidate.Detect(rootPath)
		if detectError != nil {
			manifestErrors = append(manifestErrors, detectError)
			continue
		}
		if found && project.Name != "" {
			project.Ecosystem = candidate.Ecosystem()
			return project, nil
		}
	}
	return Project{Name: directoryName(rootPath), Ecosystem: EcosystemUnknown}, errors.Join(manifestErrors...)
}

func directoryName(rootPath string) string {
	absolutePath, absoluteError := filepath.Abs(rootPath)
	if absoluteError != nil {
		return filepath.Base(rootPath)
	}
	return filepath.Base(absolutePath)
}
