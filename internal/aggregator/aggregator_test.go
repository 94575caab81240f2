package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/chunker"
	"github.com/temirov/recap/internal/summarizer"
	"github.com/temirov/recap/internal/tokenizer"
	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/walker"
)

// fakeSummarizer degrades every request for a path in degrade and only the
// final merge request for a path in degradeMerges.
type fakeSummarizer struct {
	mutex         sync.Mutex
	requests      []summarizer.Request
	degrade       map[string]bool
	degradeMerges map[string]bool
}

func (fake *fakeSummarizer) Summarize(ctx context.Context, request summarizer.Request) (summarizer.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summarizer.Summary{}, err
	}
	fake.mutex.Lock()
	fake.requests = append(fake.requests, request)
	fake.mutex.Unlock()
	if fake.degrade[request.Path] || (request.Role == types.RoleMerge && fake.degradeMerges[request.Path]) {
		return summarizer.Summary{Text: summarizer.Placeholder(request.Path), Degraded: true, Err: errors.New("unavailable")}, nil
	}
	digest := sha256.Sum256([]byte(request.Text))
	return summarizer.Summary{Text: fmt.Sprintf("%s %s#%s", request.Role, request.Path, hex.EncodeToString(digest[:4]))}, nil
}

func (fake *fakeSummarizer) requestsFor(role types.Role) []summarizer.Request {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	var matching []summarizer.Request
	for _, request := range fake.requests {
		if request.Role == role {
			matching = append(matching, request)
		}
	}
	return matching
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relativePath, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(relativePath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", relativePath, err)
		}
	}
}

type runOptions struct {
	budget       int
	maxFileBytes int64
}

func runAggregation(t *testing.T, ctx context.Context, root string, summaryCache *cache.Cache, fake *fakeSummarizer, options runOptions) (*Result, error) {
	t.Helper()
	tree, err := walker.Walk(ctx, root, walker.Options{})
	if err != nil {
		t.Fatalf("Walk error: %v", err)
	}
	budget := options.budget
	if budget == 0 {
		budget = 10000
	}
	budgeter, err := chunker.NewBudgeter(tokenizer.RuneCounter{}, budget)
	if err != nil {
		t.Fatalf("NewBudgeter error: %v", err)
	}
	aggregator, err := New(Options{
		FileSystem:   os.DirFS(root),
		Cache:        summaryCache,
		Summarizer:   fake,
		Budgeter:     budgeter,
		MaxFileBytes: options.maxFileBytes,
		Concurrency:  3,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return aggregator.Aggregate(ctx, tree)
}

var sampleTree = map[string]string{
	"a.py":           "print('a')\n",
	"pkg/b.go":       "package pkg\n",
	"pkg/sub/c.go":   "package sub\n",
	"docs/readme.md": "# Docs\n",
}

func TestAggregateMergesBottomUpInWalkOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	writeTree(t, root, map[string]string{"logo.png": "\x89PNG\x00\x00binary", "blank.txt": "  \n"})
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fake := &fakeSummarizer{}
	result, err := runAggregation(t, context.Background(), root, cache.New(nil, nil), fake, runOptions{})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if result.Root == nil || result.Root.Path != "." || result.Root.Text == "" {
		t.Fatalf("expected a root summary, got %+v", result.Root)
	}
	if len(fake.requestsFor(types.RoleFile)) != 4 || len(fake.requestsFor(types.RoleMerge)) != 4 {
		t.Fatalf("expected 4 file and 4 merge requests, got %d and %d", len(fake.requestsFor(types.RoleFile)), len(fake.requestsFor(types.RoleMerge)))
	}

	var rootInput string
	for _, request := range fake.requestsFor(types.RoleMerge) {
		if request.Path == "." {
			rootInput = request.Text
		}
	}
	positions := []int{
		strings.Index(rootInput, "### a.py"),
		strings.Index(rootInput, "### docs"),
		strings.Index(rootInput, "### pkg"),
	}
	for index, position := range positions {
		if position < 0 || (index > 0 && position < positions[index-1]) {
			t.Fatalf("root merge input out of walk order: %q", rootInput)
		}
	}
	if strings.Contains(rootInput, "### empty") || strings.Contains(rootInput, "logo.png") {
		t.Fatalf("unsummarized children leaked into merge input: %q", rootInput)
	}

	childNames := make([]string, 0, len(result.Root.Children))
	for _, child := range result.Root.Children {
		childNames = append(childNames, child.Name)
	}
	if strings.Join(childNames, ",") != "a.py,docs,pkg" {
		t.Fatalf("unexpected root children %v", childNames)
	}

	if len(result.Skipped) != 2 || result.Skipped[0].Path != "blank.txt" || result.Skipped[1].Path != "logo.png" {
		t.Fatalf("unexpected skips %+v", result.Skipped)
	}
	if result.Skipped[1].Reason != reasonBinary || result.Skipped[0].Reason != reasonEmpty {
		t.Fatalf("unexpected skip reasons %+v", result.Skipped)
	}
	if len(result.Degraded) != 0 {
		t.Fatalf("unexpected degraded paths %v", result.Degraded)
	}
}

func TestAggregateIsIncremental(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	summaryCache := cache.New(cache.NewMemoryStore(), nil)

	first, err := runAggregation(t, context.Background(), root, summaryCache, &fakeSummarizer{}, runOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	unchanged := &fakeSummarizer{}
	second, err := runAggregation(t, context.Background(), root, summaryCache, unchanged, runOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(unchanged.requests) != 0 {
		t.Fatalf("unchanged tree issued %d requests", len(unchanged.requests))
	}
	if second.Stats.NodeHits != 8 || second.Stats.NodeMisses != 0 {
		t.Fatalf("expected 8 node hits, got %+v", second.Stats)
	}
	if second.Root.Text != first.Root.Text || !second.Root.CacheHit {
		t.Fatalf("root summary changed without input changes")
	}

	writeTree(t, root, map[string]string{"pkg/sub/c.go": "package sub\n\nfunc C() {}\n"})
	changed := &fakeSummarizer{}
	third, err := runAggregation(t, context.Background(), root, summaryCache, changed, runOptions{})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	var paths []string
	for _, request := range changed.requests {
		paths = append(paths, request.Path)
	}
	if strings.Join(paths, ",") != "pkg/sub/c.go,pkg/sub,pkg,." {
		t.Fatalf("expected exactly the changed file and its ancestors, got %v", paths)
	}
	if third.Stats.NodeHits != 4 {
		t.Fatalf("expected 4 node hits, got %+v", third.Stats)
	}
}

func TestAggregatePropagatesDegradedSummaries(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	summaryCache := cache.New(cache.NewMemoryStore(), nil)

	failing := &fakeSummarizer{degrade: map[string]bool{"pkg/b.go": true}}
	result, err := runAggregation(t, context.Background(), root, summaryCache, failing, runOptions{})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if strings.Join(result.Degraded, ",") != ".,pkg,pkg/b.go" {
		t.Fatalf("unexpected degraded paths %v", result.Degraded)
	}
	if !result.Root.Degraded {
		t.Fatalf("root must be degraded")
	}

	recovered := &fakeSummarizer{}
	if _, err := runAggregation(t, context.Background(), root, summaryCache, recovered, runOptions{}); err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	var paths []string
	for _, request := range recovered.requests {
		paths = append(paths, request.Path)
	}
	if strings.Join(paths, ",") != "pkg/b.go,pkg,." {
		t.Fatalf("degraded summaries must not be cached, got requests %v", paths)
	}
}

func TestAggregateChunksLargeFiles(t *testing.T) {
	root := t.TempDir()
	var content strings.Builder
	for line := 1; line <= 5; line++ {
		fmt.Fprintf(&content, "line number %02d\n", line)
	}
	writeTree(t, root, map[string]string{"big.txt": content.String()})
	summaryCache := cache.New(cache.NewMemoryStore(), nil)

	failingMerge := &fakeSummarizer{degradeMerges: map[string]bool{"big.txt": true}}
	first, err := runAggregation(t, context.Background(), root, summaryCache, failingMerge, runOptions{budget: 40})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	chunkRequests := 0
	for _, request := range failingMerge.requestsFor(types.RoleFile) {
		if request.Total == 3 {
			chunkRequests++
		}
	}
	if chunkRequests != 3 {
		t.Fatalf("expected 3 chunk requests, got %d", chunkRequests)
	}
	if first.Stats.ChunkMisses != 3 {
		t.Fatalf("expected 3 chunk misses, got %+v", first.Stats)
	}
	if !first.Root.Degraded || strings.Join(first.Degraded, ",") != ".,big.txt" {
		t.Fatalf("a failed merge must degrade the file and its ancestors, got %v", first.Degraded)
	}

	healthy := &fakeSummarizer{}
	second, err := runAggregation(t, context.Background(), root, summaryCache, healthy, runOptions{budget: 40})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Stats.ChunkHits != 3 {
		t.Fatalf("expected cached chunks, got %+v", second.Stats)
	}
	if len(healthy.requestsFor(types.RoleFile)) != 0 {
		t.Fatalf("cached chunks were summarized again")
	}
	if second.Root.Degraded {
		t.Fatalf("recovered run must not be degraded")
	}
}

func TestAggregateSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.go": "package small\n",
		"huge.sql": strings.Repeat("INSERT INTO t VALUES (1);\n", 100),
	})
	result, err := runAggregation(t, context.Background(), root, cache.New(nil, nil), &fakeSummarizer{}, runOptions{maxFileBytes: 1024})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Path != "huge.sql" || !strings.HasPrefix(result.Skipped[0].Reason, "larger than") {
		t.Fatalf("unexpected skips %+v", result.Skipped)
	}
}

func TestAggregateWithoutFilesReportsNothingToSummarize(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := runAggregation(t, context.Background(), root, nil, &fakeSummarizer{}, runOptions{}); !errors.Is(err, ErrNothingToSummarize) {
		t.Fatalf("expected ErrNothingToSummarize, got %v", err)
	}
}

func TestAggregateStopsOnCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	tree, err := walker.Walk(context.Background(), root, walker.Options{})
	if err != nil {
		t.Fatalf("Walk error: %v", err)
	}
	budgeter, _ := chunker.NewBudgeter(tokenizer.RuneCounter{}, 1000)
	aggregator, err := New(Options{FileSystem: os.DirFS(root), Summarizer: &fakeSummarizer{}, Budgeter: budgeter})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := aggregator.Aggregate(ctx, tree); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAggregateStopsReductionWithoutProgress(t *testing.T) {
	root := t.TempDir()
	var content strings.Builder
	for line := 1; line <= 5; line++ {
		fmt.Fprintf(&content, "line number %02d\n", line)
	}
	writeTree(t, root, map[string]string{"big.txt": content.String()})

	// Part summaries plus their labels never fit 40 runes, so a second round
	// would only grow the input.
	fake := &fakeSummarizer{}
	result, err := runAggregation(t, context.Background(), root, cache.New(nil, nil), fake, runOptions{budget: 40})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if result.Stats.ReductionSteps != 3 {
		t.Fatalf("expected a single reduction round of 3 parts, got %+v", result.Stats)
	}
	var finalMerges int
	for _, request := range fake.requestsFor(types.RoleMerge) {
		if request.Path == "big.txt" {
			finalMerges++
		}
	}
	if finalMerges != 1 {
		t.Fatalf("expected one final merge for big.txt, got %d", finalMerges)
	}
	if result.Root.Degraded || result.Root.Text == "" {
		t.Fatalf("expected a healthy root summary, got %+v", result.Root)
	}
}
