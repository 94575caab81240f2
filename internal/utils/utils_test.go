package utils_test

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/temirov/recap/internal/utils"
)

func TestDeduplicatePatternsPreservesFirstOccurrence(t *testing.T) {
	result := utils.DeduplicatePatterns([]string{"venv/", "*.pyc", "venv/", "README.md", "*.pyc"})
	expected := []string{"venv/", "*.pyc", "README.md"}
	if !reflect.DeepEqual(result, expected) {
		t.Fatalf("expected %v, got %v", expected, result)
	}
}

func TestRelativePathOrSelf(t *testing.T) {
	root := t.TempDir()
	testCases := []struct {
		name     string
		fullPath string
		expected string
	}{
		{name: "root", fullPath: root, expected: "."},
		{name: "nested", fullPath: filepath.Join(root, "a", "b.go"), expected: "a/b.go"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if result := utils.RelativePathOrSelf(testCase.fullPath, root); result != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

func TestNormalizeRelativePathAndSegments(t *testing.T) {
	testCases := []struct {
		input            string
		expectedPath     string
		expectedSegments []string
	}{
		{input: "", expectedPath: ".", expectedSegments: nil},
		{input: "./b/venv/c.py", expectedPath: "b/venv/c.py", expectedSegments: []string{"b", "venv", "c.py"}},
		{input: `b\venv\`, expectedPath: "b/venv", expectedSegments: []string{"b", "venv"}},
	}
	for _, testCase := range testCases {
		if result := utils.NormalizeRelativePath(testCase.input); result != testCase.expectedPath {
			t.Fatalf("NormalizeRelativePath(%q): expected %q, got %q", testCase.input, testCase.expectedPath, result)
		}
		if segments := utils.PathSegments(testCase.input); !reflect.DeepEqual(segments, testCase.expectedSegments) {
			t.Fatalf("PathSegments(%q): expected %v, got %v", testCase.input, testCase.expectedSegments, segments)
		}
	}
}

func TestIsBinary(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{name: "empty", data: nil, expected: false},
		{name: "text", data: []byte("print('hi')\n"), expected: false},
		{name: "nul byte", data: []byte{'a', 0x00, 'b'}, expected: true},
		{name: "invalid utf8", data: []byte{0xff, 0xfe, 0xfd}, expected: true},
		{name: "long text cut inside rune", data: []byte(strings.Repeat("a", 7999) + "é tail"), expected: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if result := utils.IsBinary(testCase.data); result != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, result)
			}
		})
	}
}
