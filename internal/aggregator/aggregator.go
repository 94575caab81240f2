// Package aggregator derives file and directory summaries bottom-up from a
// walked tree: files first, then directories level by level from the deepest
// level to the root.
package aggregator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/chunker"
	"github.com/temirov/recap/internal/summarizer"
	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
	"github.com/temirov/recap/internal/walker"
)

const (
	defaultConcurrency = 4

	// Split-and-merge rounds for merge inputs above the budget. A final merge
	// follows whatever the rounds leave.
	maxReductionRounds = 4

	reasonBinary      = "binary content"
	reasonEmpty       = "empty file"
	reasonTooLarge    = "larger than %s"
	reasonUnreadable  = "unreadable: %v"
	reasonEmptyOutput = "nothing to summarize"

	chunkLabelFormat = "part %d of %d"
	mergeEntryFormat = "### %s\n\n%s"
	mergeEntryJoiner = "\n\n"
	partPathFormat   = "%s (part %d of %d)"

	warningSkipFileMessage       = "skipping file"
	warningCachePutMessage       = "cache write failed"
	debugCacheHitMessage         = "cache hit"
	debugSummarizedMessage       = "summarized"
	debugLevelStartMessage       = "merging directory level"
	debugReductionStalledMessage = "merge reduction stalled"
	logPathField                 = "path"
	logReasonField               = "reason"
	logDepthField                = "depth"
	logDirectoryCountField       = "directories"
	logDegradedField             = "degraded"
	logFingerprintField          = "fingerprint"
	logChunkCountField           = "chunks"
	logRoundField                = "round"
)

// ErrNothingToSummarize reports a tree that produced no summary at all.
var ErrNothingToSummarize = errors.New("no files to summarize")

// Summarizer produces one summary per request.
type Summarizer interface {
	Summarize(ctx context.Context, request summarizer.Request) (summarizer.Summary, error)
}

// Progress reports completed work units out of the known total.
type Progress func(completed int, total int)

// Options configures an Aggregator. FileSystem is rooted at the walk root and
// is read with the relative paths recorded in the tree.
type Options struct {
	FileSystem   fs.FS
	Cache        *cache.Cache
	Summarizer   Summarizer
	Budgeter     *chunker.Budgeter
	MaxFileBytes int64
	Concurrency  int
	Progress     Progress
	Logger       *zap.Logger
}

// Skip is a file that was included by the rules but could not be summarized.
type Skip struct {
	Path   string `yaml:"path" json:"path"`
	Reason string `yaml:"reason" json:"reason"`
}

// Stats counts the work done by one aggregation.
type Stats struct {
	Files          int   `yaml:"files" json:"files"`
	Directories    int   `yaml:"directories" json:"directories"`
	NodeHits       int64 `yaml:"node_cache_hits" json:"nodeCacheHits"`
	NodeMisses     int64 `yaml:"node_cache_misses" json:"nodeCacheMisses"`
	ChunkHits      int64 `yaml:"chunk_cache_hits" json:"chunkCacheHits"`
	ChunkMisses    int64 `yaml:"chunk_cache_misses" json:"chunkCacheMisses"`
	Requests       int64 `yaml:"summarization_requests" json:"summarizationRequests"`
	ReductionSteps int64 `yaml:"reduction_steps" json:"reductionSteps"`
}

// Result is the outcome of Aggregate. Root is nil only when an error is returned.
type Result struct {
	Root     *types.AggregateNode
	Skipped  []Skip
	Degraded []string
	Stats    Stats
}

// Aggregator is not reused across runs; construct one per run.
type Aggregator struct {
	fileSystem   fs.FS
	cache        *cache.Cache
	summarizer   Summarizer
	budgeter     *chunker.Budgeter
	maxFileBytes int64
	concurrency  int
	progress     Progress
	logger       *zap.Logger

	mutex    sync.Mutex
	skipped  []Skip
	degraded []string

	nodeHits       atomic.Int64
	nodeMisses     atomic.Int64
	chunkHits      atomic.Int64
	chunkMisses    atomic.Int64
	requests       atomic.Int64
	reductionSteps atomic.Int64
	completed      atomic.Int64
	total          int
}

// New validates options and constructs an Aggregator.
func New(options Options) (*Aggregator, error) {
	if options.FileSystem == nil {
		return nil, errors.New("aggregator requires a file system")
	}
	if options.Summarizer == nil {
		return nil, errors.New("aggregator requires a summarizer")
	}
	if options.Budgeter == nil {
		return nil, errors.New("aggregator requires a chunk budgeter")
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	summaryCache := options.Cache
	if summaryCache == nil {
		summaryCache = cache.New(nil, options.Logger)
	}
	return &Aggregator{
		fileSystem:   options.FileSystem,
		cache:        summaryCache,
		summarizer:   options.Summarizer,
		budgeter:     options.Budgeter,
		maxFileBytes: options.MaxFileBytes,
		concurrency:  concurrency,
		progress:     options.Progress,
		logger:       utils.LoggerOrNop(options.Logger),
	}, nil
}

// state pairs a walked node with the summary being derived for it. Each state
// is written by exactly one goroutine and read only after its level's barrier.
type state struct {
	tree      *types.TreeNode
	aggregate *types.AggregateNode
	depth     int
	children  []*state
}

func (node *state) summarized() bool {
	return node.aggregate.Text != ""
}

// Aggregate summarizes every included file of tree and merges the results up
// to the root. Provider failures degrade individual summaries; the error is
// non-nil only on cancellation or when nothing could be summarized.
func (aggregator *Aggregator) Aggregate(ctx context.Context, tree *walker.Tree) (*Result, error) {
	if tree == nil || tree.Root == nil {
		return nil, ErrNothingToSummarize
	}
	var files []*state
	levels := make(map[int][]*state)
	root := aggregator.buildState(tree.Root, 0, &files, levels)
	aggregator.total = len(files)
	for _, directories := range levels {
		aggregator.total += len(directories)
	}

	filesGroup, filesContext := errgroup.WithContext(ctx)
	filesGroup.SetLimit(aggregator.concurrency)
	for _, file := range files {
		file := file
		filesGroup.Go(func() error {
			defer aggregator.advance()
			return aggregator.summarizeFile(filesContext, file)
		})
	}
	if waitError := filesGroup.Wait(); waitError != nil {
		return nil, waitError
	}

	depths := make([]int, 0, len(levels))
	for depth := range levels {
		depths = append(depths, depth)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))
	for _, depth := range depths {
		aggregator.logger.Debug(debugLevelStartMessage, zap.Int(logDepthField, depth), zap.Int(logDirectoryCountField, len(levels[depth])))
		levelGroup, levelContext := errgroup.WithContext(ctx)
		levelGroup.SetLimit(aggregator.concurrency)
		for _, directory := range levels[depth] {
			directory := directory
			levelGroup.Go(func() error {
				defer aggregator.advance()
				return aggregator.mergeDirectory(levelContext, directory)
			})
		}
		if waitError := levelGroup.Wait(); waitError != nil {
			return nil, waitError
		}
	}

	if !root.summarized() {
		return nil, ErrNothingToSummarize
	}
	return &Result{
		Root:     prune(root),
		Skipped:  aggregator.sortedSkips(),
		Degraded: aggregator.sortedDegraded(),
		Stats: Stats{
			Files:          len(files),
			Directories:    aggregator.total - len(files),
			NodeHits:       aggregator.nodeHits.Load(),
			NodeMisses:     aggregator.nodeMisses.Load(),
			ChunkHits:      aggregator.chunkHits.Load(),
			ChunkMisses:    aggregator.chunkMisses.Load(),
			Requests:       aggregator.requests.Load(),
			ReductionSteps: aggregator.reductionSteps.Load(),
		},
	}, nil
}

func (aggregator *Aggregator) buildState(node *types.TreeNode, depth int, files *[]*state, levels map[int][]*state) *state {
	current := &state{
		tree: node,
		aggregate: &types.AggregateNode{
			Path: node.Path,
			Name: node.Name,
			Kind: node.Kind,
		},
		depth: depth,
	}
	if !node.IsDirectory() {
		*files = append(*files, current)
		return current
	}
	for _, child := range node.Children {
		if child.Verdict != types.VerdictIncluded {
			continue
		}
		current.children = append(current.children, aggregator.buildState(child, depth+1, files, levels))
	}
	levels[depth] = append(levels[depth], current)
	return current
}

func (aggregator *Aggregator) advance() {
	completed := aggregator.completed.Add(1)
	if aggregator.progress != nil {
		aggregator.progress(int(completed), aggregator.total)
	}
}

func (aggregator *Aggregator) summarizeFile(ctx context.Context, file *state) error {
	content, skipReason := aggregator.readFile(file.tree.Path)
	if skipReason != "" {
		file.tree.Verdict = types.VerdictSkipped
		file.tree.Reason = skipReason
		aggregator.recordSkip(file.tree.Path, skipReason)
		return nil
	}

	fingerprint := cache.Fingerprint(file.tree.Path, content)
	file.aggregate.Fingerprint = fingerprint
	if record, found := aggregator.cache.Get(ctx, fingerprint); found {
		aggregator.nodeHits.Add(1)
		file.aggregate.Text = record.Text
		file.aggregate.CacheHit = true
		aggregator.logger.Debug(debugCacheHitMessage, zap.String(logPathField, file.tree.Path))
		return nil
	}
	aggregator.nodeMisses.Add(1)

	chunks, splitError := aggregator.budgeter.Split(string(content))
	if splitError != nil {
		return fmt.Errorf("split %s: %w", file.tree.Path, splitError)
	}

	var text string
	var degraded bool
	if len(chunks) == 1 {
		summary, summarizeError := aggregator.summarize(ctx, summarizer.Request{Role: types.RoleFile, Path: file.tree.Path, Text: chunks[0].Text})
		if summarizeError != nil {
			return summarizeError
		}
		text, degraded = summary.Text, summary.Degraded
	} else {
		labels := make([]string, len(chunks))
		texts := make([]string, len(chunks))
		for index, chunk := range chunks {
			labels[index] = fmt.Sprintf(chunkLabelFormat, chunk.Index+1, chunk.Total)
			chunkText, chunkDegraded, chunkError := aggregator.summarizeChunk(ctx, file.tree.Path, fingerprint, chunk)
			if chunkError != nil {
				return chunkError
			}
			texts[index] = chunkText
			degraded = degraded || chunkDegraded
		}
		var mergeDegraded bool
		var mergeError error
		text, mergeDegraded, mergeError = aggregator.reduce(ctx, file.tree.Path, labels, texts)
		if mergeError != nil {
			return mergeError
		}
		degraded = degraded || mergeDegraded
	}

	aggregator.finish(ctx, file, types.RoleFile, text, degraded)
	aggregator.logger.Debug(debugSummarizedMessage, zap.String(logPathField, file.tree.Path), zap.Int(logChunkCountField, len(chunks)), zap.Bool(logDegradedField, degraded))
	return nil
}

func (aggregator *Aggregator) summarizeChunk(ctx context.Context, filePath string, fileFingerprint string, chunk chunker.Chunk) (string, bool, error) {
	chunkFingerprint := cache.ChunkFingerprint(fileFingerprint, chunk.Index, chunk.Total, chunk.Text)
	if record, found := aggregator.cache.Get(ctx, chunkFingerprint); found {
		aggregator.chunkHits.Add(1)
		return record.Text, false, nil
	}
	aggregator.chunkMisses.Add(1)
	summary, summarizeError := aggregator.summarize(ctx, summarizer.Request{
		Role:  types.RoleFile,
		Path:  filePath,
		Text:  chunk.Text,
		Chunk: chunk.Index,
		Total: chunk.Total,
	})
	if summarizeError != nil {
		return "", false, summarizeError
	}
	if !summary.Degraded {
		aggregator.store(ctx, chunkFingerprint, types.SummaryRecord{Path: filePath, Role: types.RoleFile, Text: summary.Text})
	}
	return summary.Text, summary.Degraded, nil
}

func (aggregator *Aggregator) mergeDirectory(ctx context.Context, directory *state) error {
	var labels []string
	var texts []string
	degraded := false
	for _, child := range directory.children {
		if !child.summarized() {
			continue
		}
		labels = append(labels, child.tree.Path)
		texts = append(texts, child.aggregate.Text)
		degraded = degraded || child.aggregate.Degraded
	}
	if len(texts) == 0 {
		directory.tree.Reason = reasonEmptyOutput
		return nil
	}

	fingerprint := cache.MergeFingerprint(directory.tree.Path, labels, texts)
	directory.aggregate.Fingerprint = fingerprint
	if !degraded {
		if record, found := aggregator.cache.Get(ctx, fingerprint); found {
			aggregator.nodeHits.Add(1)
			directory.aggregate.Text = record.Text
			directory.aggregate.CacheHit = true
			return nil
		}
	}
	aggregator.nodeMisses.Add(1)

	text, mergeDegraded, mergeError := aggregator.reduce(ctx, directory.tree.Path, labels, texts)
	if mergeError != nil {
		return mergeError
	}
	aggregator.finish(ctx, directory, types.RoleMerge, text, degraded || mergeDegraded)
	return nil
}

// reduce merges labeled texts into one summary. Inputs above the budget are
// split and summarized in parts, and the parts merged again, for at most
// maxReductionRounds rounds. Reduction stops early once a round neither
// shrinks the input nor lowers the part count.
func (aggregator *Aggregator) reduce(ctx context.Context, nodePath string, labels []string, texts []string) (string, bool, error) {
	entries := make([]string, len(texts))
	for index := range texts {
		entries[index] = fmt.Sprintf(mergeEntryFormat, labels[index], texts[index])
	}
	input := strings.Join(entries, mergeEntryJoiner)
	degraded := false

	previousSize, previousParts := 0, 0
	for round := 0; round < maxReductionRounds; round++ {
		size, measureError := aggregator.budgeter.Measure(input)
		if measureError != nil {
			return "", false, fmt.Errorf("measure merge input for %s: %w", nodePath, measureError)
		}
		if size <= aggregator.budgeter.MaxUnitSize() {
			break
		}
		parts, splitError := aggregator.budgeter.Split(input)
		if splitError != nil {
			return "", false, fmt.Errorf("split merge input for %s: %w", nodePath, splitError)
		}
		if len(parts) < 2 {
			break
		}
		if round > 0 && size >= previousSize && len(parts) >= previousParts {
			aggregator.logger.Debug(debugReductionStalledMessage, zap.String(logPathField, nodePath), zap.Int(logRoundField, round))
			break
		}
		previousSize, previousParts = size, len(parts)
		partialEntries := make([]string, len(parts))
		for index, part := range parts {
			aggregator.reductionSteps.Add(1)
			partPath := fmt.Sprintf(partPathFormat, nodePath, part.Index+1, part.Total)
			summary, summarizeError := aggregator.summarize(ctx, summarizer.Request{Role: types.RoleMerge, Path: partPath, Text: part.Text})
			if summarizeError != nil {
				return "", false, summarizeError
			}
			degraded = degraded || summary.Degraded
			partialEntries[index] = fmt.Sprintf(mergeEntryFormat, partPath, summary.Text)
		}
		input = strings.Join(partialEntries, mergeEntryJoiner)
	}

	summary, summarizeError := aggregator.summarize(ctx, summarizer.Request{Role: types.RoleMerge, Path: nodePath, Text: input})
	if summarizeError != nil {
		return "", false, summarizeError
	}
	return summary.Text, degraded || summary.Degraded, nil
}

func (aggregator *Aggregator) summarize(ctx context.Context, request summarizer.Request) (summarizer.Summary, error) {
	aggregator.requests.Add(1)
	return aggregator.summarizer.Summarize(ctx, request)
}

// finish stores the derived text on the node. Degraded summaries are never cached.
func (aggregator *Aggregator) finish(ctx context.Context, node *state, role types.Role, text string, degraded bool) {
	node.aggregate.Text = text
	node.aggregate.Degraded = degraded
	if degraded {
		aggregator.mutex.Lock()
		aggregator.degraded = append(aggregator.degraded, node.tree.Path)
		aggregator.mutex.Unlock()
		return
	}
	aggregator.store(ctx, node.aggregate.Fingerprint, types.SummaryRecord{Path: node.tree.Path, Role: role, Text: text})
}

func (aggregator *Aggregator) store(ctx context.Context, fingerprint string, record types.SummaryRecord) {
	record.GeneratedAt = time.Now().UTC()
	if putError := aggregator.cache.Put(ctx, fingerprint, record); putError != nil {
		aggregator.logger.Warn(warningCachePutMessage,
			zap.String(logPathField, record.Path),
			zap.String(logFingerprintField, fingerprint),
			zap.Error(putError))
	}
}

// readFile returns the content of relativePath or the reason it is skipped.
func (aggregator *Aggregator) readFile(relativePath string) ([]byte, string) {
	if aggregator.maxFileBytes > 0 {
		info, statError := fs.Stat(aggregator.fileSystem, relativePath)
		if statError != nil {
			return nil, aggregator.skipReason(relativePath, fmt.Sprintf(reasonUnreadable, statError))
		}
		if info.Size() > aggregator.maxFileBytes {
			return nil, aggregator.skipReason(relativePath, fmt.Sprintf(reasonTooLarge, utils.FormatFileSize(aggregator.maxFileBytes)))
		}
	}
	content, readError := fs.ReadFile(aggregator.fileSystem, relativePath)
	if readError != nil {
		return nil, aggregator.skipReason(relativePath, fmt.Sprintf(reasonUnreadable, readError))
	}
	if utils.IsBinary(content) {
		return nil, aggregator.skipReason(relativePath, reasonBinary)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, aggregator.skipReason(relativePath, reasonEmpty)
	}
	return content, ""
}

func (aggregator *Aggregator) skipReason(relativePath string, reason string) string {
	aggregator.logger.Debug(warningSkipFileMessage, zap.String(logPathField, relativePath), zap.String(logReasonField, reason))
	return reason
}

func (aggregator *Aggregator) recordSkip(relativePath string, reason string) {
	aggregator.mutex.Lock()
	defer aggregator.mutex.Unlock()
	aggregator.skipped = append(aggregator.skipped, Skip{Path: relativePath, Reason: reason})
}

func (aggregator *Aggregator) sortedSkips() []Skip {
	aggregator.mutex.Lock()
	defer aggregator.mutex.Unlock()
	skips := append([]Skip(nil), aggregator.skipped...)
	sort.Slice(skips, func(left, right int) bool { return skips[left].Path < skips[right].Path })
	return skips
}

func (aggregator *Aggregator) sortedDegraded() []string {
	aggregator.mutex.Lock()
	defer aggregator.mutex.Unlock()
	degraded := append([]string(nil), aggregator.degraded...)
	sort.Strings(degraded)
	return degraded
}

// prune links summarized nodes into an AggregateNode tree, dropping children
// without a summary.
func prune(node *state) *types.AggregateNode {
	for _, child := range node.children {
		if !child.summarized() {
			continue
		}
		node.aggregate.Children = append(node.aggregate.Children, prune(child))
	}
	return node.aggregate
}
