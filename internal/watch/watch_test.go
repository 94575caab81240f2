package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/temirov/recap/internal/matcher"
)

func newTestMatcher(t *testing.T, ruleText string) *matcher.Matcher {
	t.Helper()
	rules, _, err := matcher.ParseRules(strings.NewReader(ruleText), "test")
	if err != nil {
		t.Fatalf("ParseRules error: %v", err)
	}
	return matcher.New(rules)
}

func TestRelevantHonorsRulesAndIgnoredPaths(t *testing.T) {
	root := t.TempDir()
	watcher, err := New(Options{
		Root:        root,
		Excluder:    newTestMatcher(t, "venv/\n*.log\n"),
		IgnorePaths: []string{"README.md", ".recap"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer watcher.Close()

	testCases := []struct {
		path     string
		relevant bool
	}{
		{path: "main.go", relevant: true},
		{path: "pkg/api.go", relevant: true},
		{path: "README.md", relevant: false},
		{path: "docs/README.md", relevant: true},
		{path: ".recap/cache/ab/abcd.json", relevant: false},
		{path: "venv/lib/site.py", relevant: false},
		{path: "venv/", relevant: false},
		{path: "tools/venv", relevant: true},
		{path: "logs/run.log", relevant: false},
	}
	for _, testCase := range testCases {
		if watcher.Relevant(testCase.path) != testCase.relevant {
			t.Fatalf("Relevant(%q) != %v", testCase.path, testCase.relevant)
		}
	}
}

func TestRunDeliversDebouncedChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	watcher, err := New(Options{Root: root, IgnorePaths: []string{"README.md"}, Debounce: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	batches := make(chan []string, 4)
	errStop := errors.New("stop")
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx, func(_ context.Context, changed []string) error {
			batches <- changed
			return errStop
		})
	}()

	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "pkg", "api.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case changed := <-batches:
		if len(changed) != 1 || changed[0] != "pkg/api.go" {
			t.Fatalf("unexpected batch %v", changed)
		}
	case <-ctx.Done():
		t.Fatalf("no change delivered")
	}
	if runErr := <-done; !errors.Is(runErr, errStop) {
		t.Fatalf("expected handler error to stop the watch, got %v", runErr)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	watcher, err := New(Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer watcher.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := watcher.Run(ctx, func(context.Context, []string) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
