// Package utils contains general helper functions used across recap.
package utils

import (
	"path/filepath"
	"strings"
)

const pathSegmentSeparator = "/"

// DeduplicatePatterns removes duplicate patterns from a slice while preserving order.
// The first occurrence of each unique pattern is kept.
func DeduplicatePatterns(patterns []string) []string {
	encounteredPatterns := make(map[string]struct{})
	result := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if _, exists := encounteredPatterns[pattern]; !exists {
			encounteredPatterns[pattern] = struct{}{}
			result = append(result, pattern)
		}
	}
	return result
}

// RelativePathOrSelf calculates the forward-slash relative path from root to fullPath.
// Returns the cleaned fullPath if relative calculation fails.
// Returns "." if fullPath and root resolve to the same directory.
func RelativePathOrSelf(fullPath, root string) string {
	cleanPath := filepath.Clean(fullPath)
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return cleanPath
	}
	cleanAbsoluteRoot := filepath.Clean(absoluteRoot)

	if cleanPath == cleanAbsoluteRoot {
		return "."
	}

	relativePath, relErr := filepath.Rel(cleanAbsoluteRoot, cleanPath)
	if relErr != nil {
		return cleanPath
	}
	return filepath.ToSlash(relativePath)
}

// NormalizeRelativePath converts a relative path to forward-slash form without
// leading "./" or trailing separators. The root itself normalizes to ".".
func NormalizeRelativePath(relativePath string) string {
	normalized := strings.ReplaceAll(relativePath, "\\", pathSegmentSeparator)
	normalized = strings.TrimPrefix(normalized, "./")
	normalized = strings.Trim(normalized, pathSegmentSeparator)
	if normalized == "" {
		return "."
	}
	return normalized
}

// PathSegments splits a forward-slash relative path into its segments.
func PathSegments(relativePath string) []string {
	normalized := NormalizeRelativePath(relativePath)
	if normalized == "." {
		return nil
	}
	return strings.Split(normalized, pathSegmentSeparator)
}
