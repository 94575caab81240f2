package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

const temporaryFilePattern = ".tmp-*"

// WriteFileAtomic writes data to a temporary file in the destination directory
// and renames it over destinationPath. Readers observe either the previous
// content or the complete new content.
func WriteFileAtomic(destinationPath string, data []byte, permissions os.FileMode) error {
	destinationDirectory := filepath.Dir(destinationPath)
	if mkdirError := os.MkdirAll(destinationDirectory, 0o755); mkdirError != nil {
		return fmt.Errorf("create directory %s: %w", destinationDirectory, mkdirError)
	}
	temporaryFile, createError := os.CreateTemp(destinationDirectory, temporaryFilePattern)
	if createError != nil {
		return fmt.Errorf("create temporary file in %s: %w", destinationDirectory, createError)
	}
	temporaryPath := temporaryFile.Name()
	cleanup := func() {
		_ = temporaryFile.Close()
		_ = os.Remove(temporaryPath)
	}

	if _, writeError := temporaryFile.Write(data); writeError != nil {
		cleanup()
		return fmt.Errorf("write temporary file %s: %w", temporaryPath, writeError)
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		cleanup()
		return fmt.Errorf("sync temporary file %s: %w", temporaryPath, syncError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("close temporary file %s: %w", temporaryPath, closeError)
	}
	if chmodError := os.Chmod(temporaryPath, permissions); chmodError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("set permissions on %s: %w", temporaryPath, chmodError)
	}
	if renameError := os.Rename(temporaryPath, destinationPath); renameError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("replace %s: %w", destinationPath, renameError)
	}
	return nil
}
