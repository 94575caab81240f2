// Package walker enumerates a repository into an ordered tree of included,
// excluded and skipped nodes.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

const (
	rootRelativePath = "."

	reasonExcludedByRule     = "excluded by rule"
	reasonGeneratedPath      = "generated by recap"
	reasonUnreadable         = "unreadable"
	reasonBrokenLink         = "broken symbolic link"
	reasonSymlinkCycle       = "symbolic link cycle"
	reasonSymlinkNotFollowed = "symbolic link to directory not followed"
	reasonUnsupportedType    = "not a regular file"

	debugExcludedMessage = "excluded"
	debugSkippedMessage  = "skipped"
)

// Excluder decides whether a relative path is excluded. Directory paths carry
// a trailing slash.
type Excluder interface {
	IsExcluded(relativePath string) bool
}

// Options configures a walk.
type Options struct {
	Excluder       Excluder
	SkipPaths      []string
	FollowSymlinks bool
	Logger         *zap.Logger
}

// WalkError records an entry the walker could not visit. It is never fatal.
type WalkError struct {
	Path string
	Err  error
}

func (walkError WalkError) Error() string {
	return fmt.Sprintf("%s: %v", walkError.Path, walkError.Err)
}

func (walkError WalkError) Unwrap() error {
	return walkError.Err
}

// ErrSymlinkCycle reports a symbolic link that resolves to one of its own ancestors.
var ErrSymlinkCycle = errors.New("symbolic link cycle")

// Tree is the result of a walk. Root.Path is ".".
type Tree struct {
	Root     *types.TreeNode
	Warnings []WalkError
}

// Files returns the relative paths of included files in walk order.
func (tree *Tree) Files() []string {
	var files []string
	tree.visit(func(node *types.TreeNode) {
		if !node.IsDirectory() && node.Verdict == types.VerdictIncluded {
			files = append(files, node.Path)
		}
	})
	return files
}

// NodesWithVerdict returns every node carrying verdict, in walk order.
func (tree *Tree) NodesWithVerdict(verdict types.Verdict) []*types.TreeNode {
	var nodes []*types.TreeNode
	tree.visit(func(node *types.TreeNode) {
		if node.Verdict == verdict {
			nodes = append(nodes, node)
		}
	})
	return nodes
}

func (tree *Tree) visit(visitor func(node *types.TreeNode)) {
	if tree == nil || tree.Root == nil {
		return
	}
	var walkNode func(node *types.TreeNode)
	walkNode = func(node *types.TreeNode) {
		visitor(node)
		for _, child := range node.Children {
			walkNode(child)
		}
	}
	walkNode(tree.Root)
}

type walkContext struct {
	ctx       context.Context
	root      string
	options   Options
	skipPaths map[string]struct{}
	logger    *zap.Logger
	warnings  []WalkError
}

// Walk enumerates root depth-first. Files come out in lexicographic order of
// their relative paths.
// Excluded directories are recorded but never opened. Only a root that cannot
// be read or a cancelled context produce an error.
func Walk(ctx context.Context, root string, options Options) (*Tree, error) {
	absoluteRoot, absoluteError := filepath.Abs(root)
	if absoluteError != nil {
		return nil, fmt.Errorf("resolve walk root %s: %w", root, absoluteError)
	}
	rootInfo, statError := os.Stat(absoluteRoot)
	if statError != nil {
		return nil, fmt.Errorf("stat walk root %s: %w", absoluteRoot, statError)
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf("walk root %s is not a directory", absoluteRoot)
	}

	walker := &walkContext{
		ctx:       ctx,
		root:      absoluteRoot,
		options:   options,
		skipPaths: make(map[string]struct{}, len(options.SkipPaths)),
		logger:    utils.LoggerOrNop(options.Logger),
	}
	for _, skipPath := range options.SkipPaths {
		walker.skipPaths[utils.NormalizeRelativePath(skipPath)] = struct{}{}
	}

	rootNode := &types.TreeNode{
		Path:    rootRelativePath,
		Name:    filepath.Base(absoluteRoot),
		Kind:    types.NodeKindDirectory,
		Verdict: types.VerdictIncluded,
	}
	realRoot, evalError := filepath.EvalSymlinks(absoluteRoot)
	if evalError != nil {
		realRoot = absoluteRoot
	}
	entries, readError := os.ReadDir(absoluteRoot)
	if readError != nil {
		return nil, fmt.Errorf("read walk root %s: %w", absoluteRoot, readError)
	}
	if walkError := walker.walkEntries(rootNode, absoluteRoot, entries, map[string]struct{}{realRoot: {}}); walkError != nil {
		return nil, walkError
	}
	return &Tree{Root: rootNode, Warnings: walker.warnings}, nil
}

func (walker *walkContext) walkEntries(parent *types.TreeNode, directoryPath string, entries []fs.DirEntry, ancestors map[string]struct{}) error {
	for _, entry := range entries {
		if contextError := walker.ctx.Err(); contextError != nil {
			return contextError
		}
		childNode, walkError := walker.visitEntry(parent, directoryPath, entry, ancestors)
		if walkError != nil {
			return walkError
		}
		parent.Children = append(parent.Children, childNode)
	}
	sort.SliceStable(parent.Children, func(left, right int) bool {
		return orderKey(parent.Children[left]) < orderKey(parent.Children[right])
	})
	return nil
}

// matchPath marks directories with a trailing slash for the excluder.
func matchPath(relativePath string, isDirectory bool) string {
	if isDirectory {
		return relativePath + "/"
	}
	return relativePath
}

// orderKey sorts a directory as its name followed by a slash, so siblings come
// out in the lexicographic order of their full paths.
func orderKey(node *types.TreeNode) string {
	if node.Kind == types.NodeKindDirectory {
		return node.Name + "/"
	}
	return node.Name
}

func (walker *walkContext) visitEntry(parent *types.TreeNode, directoryPath string, entry fs.DirEntry, ancestors map[string]struct{}) (*types.TreeNode, error) {
	childPath := filepath.Join(directoryPath, entry.Name())
	relativePath := entry.Name()
	if parent.Path != rootRelativePath {
		relativePath = path.Join(parent.Path, entry.Name())
	}
	node := &types.TreeNode{
		Path:    relativePath,
		Name:    entry.Name(),
		Kind:    types.NodeKindFile,
		Verdict: types.VerdictIncluded,
	}

	entryType := entry.Type()
	isSymlink := entryType&fs.ModeSymlink != 0
	isDirectory := entry.IsDir()
	if isSymlink {
		targetInfo, statError := os.Stat(childPath)
		if statError != nil {
			walker.warn(relativePath, statError)
			return walker.skip(node, reasonBrokenLink), nil
		}
		isDirectory = targetInfo.IsDir()
		entryType = targetInfo.Mode().Type()
	}
	if isDirectory {
		node.Kind = types.NodeKindDirectory
	}

	if _, generated := walker.skipPaths[relativePath]; generated {
		return walker.skip(node, reasonGeneratedPath), nil
	}
	if walker.options.Excluder != nil && walker.options.Excluder.IsExcluded(matchPath(relativePath, isDirectory)) {
		node.Verdict = types.VerdictExcluded
		node.Reason = reasonExcludedByRule
		walker.logger.Debug(debugExcludedMessage, zap.String("path", relativePath))
		return node, nil
	}

	if !isDirectory {
		if !entryType.IsRegular() {
			return walker.skip(node, reasonUnsupportedType), nil
		}
		return node, nil
	}

	if isSymlink && !walker.options.FollowSymlinks {
		return walker.skip(node, reasonSymlinkNotFollowed), nil
	}
	realPath, evalError := filepath.EvalSymlinks(childPath)
	if evalError != nil {
		walker.warn(relativePath, evalError)
		return walker.skip(node, reasonUnreadable), nil
	}
	if _, cycle := ancestors[realPath]; cycle {
		walker.warn(relativePath, ErrSymlinkCycle)
		return walker.skip(node, reasonSymlinkCycle), nil
	}

	entries, readError := os.ReadDir(childPath)
	if readError != nil {
		walker.warn(relativePath, readError)
		return walker.skip(node, reasonUnreadable), nil
	}
	ancestors[realPath] = struct{}{}
	walkError := walker.walkEntries(node, childPath, entries, ancestors)
	delete(ancestors, realPath)
	if walkError != nil {
		return nil, walkError
	}
	return node, nil
}

func (walker *walkContext) skip(node *types.TreeNode, reason string) *types.TreeNode {
	node.Verdict = types.VerdictSkipped
	node.Reason = reason
	walker.logger.Debug(debugSkippedMessage, zap.String("path", node.Path), zap.String("reason", reason))
	return node
}

func (walker *walkContext) warn(relativePath string, err error) {
	walker.warnings = append(walker.warnings, WalkError{Path: relativePath, Err: err})
}
