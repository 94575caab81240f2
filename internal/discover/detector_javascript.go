package discover

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const javaScriptManifestName = "package.json"

type javaScriptDetector struct{}

func (javaScriptDetector) Ecosystem() Ecosystem {
	return EcosystemJavaScript
}

func (javaScriptDetector) Detect(rootPath string) (Project, bool, error) {
	data, readErr := os.ReadFile(filepath.Join(rootPath, javaScriptManifestName))
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Project{}, false, nil
		}
		return Project{}, false, fmt.Errorf("%w: read %s: %v", errManifestParse, javaScriptManifestName, readErr)
	}
	var manifest npmManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Project{}, false, fmt.Errorf("%w: parse %s: %v", errManifestParse, javaScriptManifestName, err)
	}
	name := strings.TrimSpace(manifest.Name)
	if name == "" {
		return Project{}, false, nil
	}
	return Project{
		Name:        name,
		Description: strings.TrimSpace(manifest.Description),
		Manifest:    javaScriptManifestName,
	}, true, nil
}

type npmManifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
