package discover

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

const goManifestName = "go.mod"

type goDetector struct{}

func (goDetector) Ecosystem() Ecosystem {
	return EcosystemGo
}

// Detect names a Go project after the last element of its module path.
func (goDetector) Detect(rootPath string) (Project, bool, error) {
	bytes, readErr := os.ReadFile(filepath.Join(rootPath, goManifestName))
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Project{}, false, nil
		}
		return Project{}, false, fmt.Errorf("%w: read %s: %v", errManifestParse, goManifestName, readErr)
	}
	modFile, parseErr := modfile.Parse(goManifestName, bytes, nil)
	if parseErr != nil {
		return Project{}, false, fmt.Errorf("%w: parse %s: %v", errManifestParse, goManifestName, parseErr)
	}
	if modFile == nil || modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return Project{}, false, nil
	}
	modulePath := modFile.Module.Mod.Path
	return Project{
		Name:        path.Base(modulePath),
		Description: modulePath,
		Manifest:    goManifestName,
	}, true, nil
}
