package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const pythonManifestName = "pyproject.toml"

type pythonDetector struct{}

func (pythonDetector) Ecosystem() Ecosystem {
	return EcosystemPython
}

// Detect reads the PEP 621 [project] table and falls back to [tool.poetry].
func (pythonDetector) Detect(rootPath string) (Project, bool, error) {
	data, readErr := os.ReadFile(filepath.Join(rootPath, pythonManifestName))
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Project{}, false, nil
		}
		return Project{}, false, fmt.Errorf("%w: read %s: %v", errManifestParse, pythonManifestName, readErr)
	}
	var manifest pyProjectManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return Project{}, false, fmt.Errorf("%w: parse %s: %v", errManifestParse, pythonManifestName, err)
	}
	metadata := manifest.Project
	if strings.TrimSpace(metadata.Name) == "" {
		metadata = manifest.Tool.Poetry
	}
	name := strings.TrimSpace(metadata.Name)
	if name == "" {
		return Project{}, false, nil
	}
	return Project{
		Name:        name,
		Description: strings.TrimSpace(metadata.Description),
		Manifest:    pythonManifestName,
	}, true, nil
}

type pyProjectMetadata struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

type pyProjectManifest struct {
	Project pyProjectMetadata `toml:"project"`
	Tool    struct {
		Poetry pyProjectMetadata `toml:"poetry"`
	} `toml:"tool"`
}
