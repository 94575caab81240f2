package cache_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/types"
)

func TestFingerprintDependsOnPathAndContent(t *testing.T) {
	content := []byte("package main\n")
	first := cache.Fingerprint("a/main.go", content)
	if first != cache.Fingerprint("a/main.go", content) {
		t.Fatalf("fingerprint is not deterministic")
	}
	if first == cache.Fingerprint("b/main.go", content) {
		t.Fatalf("identical content at different paths must yield different fingerprints")
	}
	if first == cache.Fingerprint("a/main.go", []byte("package main \n")) {
		t.Fatalf("changed content must yield a different fingerprint")
	}
	if len(first) != 64 {
		t.Fatalf("expected a hex sha256 digest, got %q", first)
	}
	if cache.Fingerprint("ab", []byte("c")) == cache.Fingerprint("a", []byte("bc")) {
		t.Fatalf("path and content boundary must be unambiguous")
	}
}

func TestMergeFingerprintTracksInputs(t *testing.T) {
	base := cache.MergeFingerprint("pkg", []string{"pkg/a.go", "pkg/b.go"}, []string{"alpha", "beta"})
	testCases := map[string]string{
		"changed text":  cache.MergeFingerprint("pkg", []string{"pkg/a.go", "pkg/b.go"}, []string{"alpha", "gamma"}),
		"swapped order": cache.MergeFingerprint("pkg", []string{"pkg/b.go", "pkg/a.go"}, []string{"beta", "alpha"}),
		"other path":    cache.MergeFingerprint("lib", []string{"pkg/a.go", "pkg/b.go"}, []string{"alpha", "beta"}),
		"joined texts":  cache.MergeFingerprint("pkg", []string{"pkg/a.go"}, []string{"alphabeta"}),
	}
	for name, fingerprint := range testCases {
		if fingerprint == base {
			t.Fatalf("%s: expected a different fingerprint", name)
		}
	}
	if base != cache.MergeFingerprint("pkg", []string{"pkg/a.go", "pkg/b.go"}, []string{"alpha", "beta"}) {
		t.Fatalf("merge fingerprint is not deterministic")
	}
	fileFingerprint := cache.Fingerprint("big.txt", []byte("x"))
	if cache.ChunkFingerprint(fileFingerprint, 0, 2, "x") == cache.ChunkFingerprint(fileFingerprint, 1, 2, "x") {
		t.Fatalf("chunk position must be part of the chunk fingerprint")
	}
}

func newRecord(fingerprint string) types.SummaryRecord {
	return types.SummaryRecord{
		Fingerprint: fingerprint,
		Path:        "main.go",
		Role:        types.RoleFile,
		Text:        "Entry point.",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	summaryCache := cache.New(store, nil)
	fingerprint := cache.Fingerprint("main.go", []byte("package main\n"))

	if _, found := summaryCache.Get(context.Background(), fingerprint); found {
		t.Fatalf("expected a miss on an empty store")
	}
	record := newRecord("ignored")
	if err := summaryCache.Put(context.Background(), fingerprint, record); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := summaryCache.Put(context.Background(), fingerprint, record); err != nil {
		t.Fatalf("repeated Put error: %v", err)
	}
	loaded, found := summaryCache.Get(context.Background(), fingerprint)
	if !found {
		t.Fatalf("expected a hit after Put")
	}
	if loaded.Fingerprint != fingerprint || loaded.Text != record.Text || !loaded.GeneratedAt.Equal(record.GeneratedAt) {
		t.Fatalf("unexpected record %+v", loaded)
	}
	stats := summaryCache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Writes != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFileStoreCorruptRecordIsAMiss(t *testing.T) {
	directory := t.TempDir()
	store, err := cache.NewFileStore(directory)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	fingerprint := cache.Fingerprint("main.go", []byte("x"))
	recordPath := filepath.Join(directory, fingerprint[:2], fingerprint+".json")
	if err := os.MkdirAll(filepath.Dir(recordPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(recordPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	summaryCache := cache.New(store, nil)
	if _, found := summaryCache.Get(context.Background(), fingerprint); found {
		t.Fatalf("corrupt record must be a miss")
	}
	if stats := summaryCache.Stats(); stats.Corrupt != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if err := summaryCache.Put(context.Background(), fingerprint, newRecord(fingerprint)); err != nil {
		t.Fatalf("Put over corrupt record error: %v", err)
	}
	if _, found := summaryCache.Get(context.Background(), fingerprint); !found {
		t.Fatalf("expected the rewritten record to load")
	}
}

func TestFileStoreRejectsInvalidFingerprint(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if err := store.Save(context.Background(), newRecord("../../etc/passwd")); err == nil {
		t.Fatalf("expected an error for a non-hex fingerprint")
	}
}

func TestFileStoreConcurrentPuts(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	summaryCache := cache.New(store, nil)
	var waitGroup sync.WaitGroup
	fingerprints := make([]string, 32)
	for recordIndex := range fingerprints {
		fingerprints[recordIndex] = cache.Fingerprint(fmt.Sprintf("file%d.go", recordIndex), []byte("x"))
	}
	for _, fingerprint := range fingerprints {
		for writer := 0; writer < 2; writer++ {
			waitGroup.Add(1)
			go func(fingerprint string) {
				defer waitGroup.Done()
				if err := summaryCache.Put(context.Background(), fingerprint, newRecord(fingerprint)); err != nil {
					t.Errorf("Put error: %v", err)
				}
			}(fingerprint)
		}
	}
	waitGroup.Wait()
	for _, fingerprint := range fingerprints {
		if _, found := summaryCache.Get(context.Background(), fingerprint); !found {
			t.Fatalf("missing record %s", fingerprint)
		}
	}
}

func TestNewWithoutStoreUsesMemory(t *testing.T) {
	summaryCache := cache.New(nil, nil)
	fingerprint := cache.Fingerprint("a", nil)
	if err := summaryCache.Put(context.Background(), fingerprint, newRecord(fingerprint)); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, found := summaryCache.Get(context.Background(), fingerprint); !found {
		t.Fatalf("expected a hit from the memory store")
	}
	if err := summaryCache.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}
