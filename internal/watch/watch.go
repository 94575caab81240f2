// Package watch re-runs a callback when files under a repository change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/temirov/recap/internal/utils"
	"github.com/temirov/recap/internal/walker"
)

const (
	defaultDebounce = 2 * time.Second

	relevantOperations = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	debugWatchingMessage = "watching directory"
	warningAddMessage    = "cannot watch directory"
	warningErrorMessage  = "file watcher error"
	infoChangeMessage    = "changes detected"
)

// ErrWatcherFailed reports a watcher that could not be initialized.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ChangeHandler receives the sorted relative paths changed since the last call.
type ChangeHandler func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	Root        string
	Excluder    walker.Excluder
	IgnorePaths []string
	Debounce    time.Duration
	Logger      *zap.Logger
}

// Watcher watches every non-excluded directory below Root.
type Watcher struct {
	root        string
	excluder    walker.Excluder
	ignorePaths map[string]struct{}
	debounce    time.Duration
	logger      *zap.Logger
	watcher     *fsnotify.Watcher
}

// New registers watches on Root and its non-excluded subdirectories.
func New(options Options) (*Watcher, error) {
	absoluteRoot, absoluteError := filepath.Abs(options.Root)
	if absoluteError != nil {
		return nil, fmt.Errorf("resolve watch root %s: %w", options.Root, absoluteError)
	}
	fileWatcher, watcherError := fsnotify.NewWatcher()
	if watcherError != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, watcherError)
	}
	watcher := &Watcher{
		root:        absoluteRoot,
		excluder:    options.Excluder,
		ignorePaths: make(map[string]struct{}, len(options.IgnorePaths)),
		debounce:    options.Debounce,
		logger:      utils.LoggerOrNop(options.Logger),
		watcher:     fileWatcher,
	}
	if watcher.debounce <= 0 {
		watcher.debounce = defaultDebounce
	}
	for _, ignorePath := range options.IgnorePaths {
		watcher.ignorePaths[utils.NormalizeRelativePath(ignorePath)] = struct{}{}
	}
	if addError := watcher.addTree(absoluteRoot); addError != nil {
		_ = fileWatcher.Close()
		return nil, addError
	}
	return watcher, nil
}

// Close releases the underlying watcher.
func (watcher *Watcher) Close() error {
	return watcher.watcher.Close()
}

// Run delivers debounced batches of changes to handler until ctx is done. An
// error from handler stops the watch and is returned.
func (watcher *Watcher) Run(ctx context.Context, handler ChangeHandler) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(watcher.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.watcher.Events:
			if !ok {
				return nil
			}
			relativePath, relevant := watcher.relevant(event)
			if !relevant {
				continue
			}
			if event.Has(fsnotify.Create) {
				watcher.addCreatedDirectory(event.Name)
			}
			pending[relativePath] = struct{}{}
			timer.Reset(watcher.debounce)
		case watchError, ok := <-watcher.watcher.Errors:
			if !ok {
				return nil
			}
			watcher.logger.Warn(warningErrorMessage, zap.Error(watchError))
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for changedPath := range pending {
				changed = append(changed, changedPath)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			watcher.logger.Info(infoChangeMessage, zap.Int("paths", len(changed)))
			if handlerError := handler(ctx, changed); handlerError != nil {
				return handlerError
			}
		}
	}
}

// Relevant reports whether a change to relativePath should trigger a run. A
// trailing slash marks relativePath as a directory.
func (watcher *Watcher) Relevant(relativePath string) bool {
	isDirectory := strings.HasSuffix(relativePath, "/")
	relativePath = utils.NormalizeRelativePath(relativePath)
	segmentPaths := prefixes(relativePath)
	for index, segmentPath := range segmentPaths {
		if _, ignored := watcher.ignorePaths[segmentPath]; ignored {
			return false
		}
		matchPath := segmentPath
		if index < len(segmentPaths)-1 || isDirectory {
			matchPath += "/"
		}
		if watcher.excluder != nil && watcher.excluder.IsExcluded(matchPath) {
			return false
		}
	}
	return true
}

func (watcher *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&relevantOperations == 0 {
		return "", false
	}
	relativePath := utils.RelativePathOrSelf(event.Name, watcher.root)
	if relativePath == "." {
		return "", false
	}
	candidate := relativePath
	if info, statError := os.Stat(event.Name); statError == nil && info.IsDir() {
		candidate += "/"
	}
	if !watcher.Relevant(candidate) {
		return "", false
	}
	return utils.NormalizeRelativePath(relativePath), true
}

func (watcher *Watcher) addCreatedDirectory(absolutePath string) {
	info, statError := os.Stat(absolutePath)
	if statError != nil || !info.IsDir() {
		return
	}
	if addError := watcher.addTree(absolutePath); addError != nil {
		watcher.logger.Warn(warningAddMessage, zap.String("path", absolutePath), zap.Error(addError))
	}
}

// addTree watches directory and every non-excluded directory below it.
func (watcher *Watcher) addTree(directory string) error {
	return filepath.WalkDir(directory, func(currentPath string, entry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if currentPath == directory {
				return walkError
			}
			watcher.logger.Warn(warningAddMessage, zap.String("path", currentPath), zap.Error(walkError))
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		relativePath := utils.RelativePathOrSelf(currentPath, watcher.root)
		if relativePath != "." && !watcher.Relevant(relativePath+"/") {
			return filepath.SkipDir
		}
		if addError := watcher.watcher.Add(currentPath); addError != nil {
			watcher.logger.Warn(warningAddMessage, zap.String("path", currentPath), zap.Error(addError))
			return nil
		}
		watcher.logger.Debug(debugWatchingMessage, zap.String("path", currentPath))
		return nil
	})
}

// prefixes returns "a", "a/b", "a/b/c" for "a/b/c".
func prefixes(relativePath string) []string {
	segments := utils.PathSegments(relativePath)
	result := make([]string, 0, len(segments))
	for index := range segments {
		result = append(result, strings.Join(segments[:index+1], "/"))
	}
	return result
}
