package capture

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/src-d/enry/v2"

	"github.com/signet-run/signet/pkg/textutil"
)

// stabilityThreshold is how long a path must go without a further change
// event before the files adapter emits a FileActivity for it.
const stabilityThreshold = 500 * time.Millisecond

// GitResolver resolves the git context of a file's directory. The real
// implementation shells out to git with a bounded timeout; tests supply a
// fake.
type GitResolver interface {
	// Resolve reports whether dir is inside a git working tree and, if so,
	// its current branch.
	Resolve(ctx context.Context, dir string) (isRepo bool, branch string)
}

// FilesConfig configures the files adapter's watch roots and exclusions.
type FilesConfig struct {
	WatchDirs       []string
	ExcludePatterns []string
}

// FilesAdapter watches configured directories for create/modify/delete
// events, debounced per path.
type FilesAdapter struct {
	cfg     FilesConfig
	git     GitResolver
	logger  *slog.Logger
	store   *Store[FileActivity]
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]fsnotify.Op

	cancel context.CancelFunc
	done   chan struct{}

	newID func() string
	now   func() time.Time
}

// NewFilesAdapter creates a files adapter rooted at the directories in cfg.
func NewFilesAdapter(cfg FilesConfig, git GitResolver, logger *slog.Logger) *FilesAdapter {
	return &FilesAdapter{
		cfg:     cfg,
		git:     git,
		logger:  logger,
		store:   NewStore[FileActivity](DefaultFIFOCap),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]fsnotify.Op),
		newID:   newEventID,
		now:     time.Now,
	}
}

// Name implements Adapter.
func (a *FilesAdapter) Name() string { return "files" }

// Count implements Adapter.
func (a *FilesAdapter) Count() int { return a.store.Count() }

// Trim implements Adapter.
func (a *FilesAdapter) Trim(cutoff time.Time) int { return a.store.Trim(cutoff) }

// Since returns captures at or after since.
func (a *FilesAdapter) Since(since time.Time) []FileActivity { return a.store.Since(since) }

// Start launches the filesystem watch loop, recursively adding every
// non-excluded subdirectory of the configured roots.
func (a *FilesAdapter) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	a.watcher = watcher

	for _, root := range a.cfg.WatchDirs {
		if walkErr := a.addTree(root); walkErr != nil {
			a.logger.WarnContext(ctx, "capture.files watch root failed", "root", root, "error", walkErr)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.loop(runCtx)

	return nil
}

// addTree adds root and every non-excluded subdirectory to the watcher.
func (a *FilesAdapter) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: skip unreadable subtrees.
		}

		if !d.IsDir() {
			return nil
		}

		if a.excluded(path) {
			return filepath.SkipDir
		}

		return a.watcher.Add(path)
	})
}

// Stop closes the watcher and waits for the loop to exit.
func (a *FilesAdapter) Stop(_ context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.watcher != nil {
		_ = a.watcher.Close()
	}

	if a.done != nil {
		<-a.done
	}

	return nil
}

func (a *FilesAdapter) loop(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}

			a.handleEvent(ctx, event)
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}

			a.logger.WarnContext(ctx, "capture.files watcher error", "error", err)
		}
	}
}

// handleEvent debounces a raw fsnotify event: each new event for a path
// resets that path's stability timer, which fires the actual capture once
// events stop arriving for stabilityThreshold.
func (a *FilesAdapter) handleEvent(ctx context.Context, event fsnotify.Event) {
	if a.excluded(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = a.addTree(event.Name)

			return
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[event.Name] = event.Op

	if timer, ok := a.timers[event.Name]; ok {
		timer.Stop()
	}

	a.timers[event.Name] = time.AfterFunc(stabilityThreshold, func() {
		a.emit(ctx, event.Name)
	})
}

// emit resolves the stabilized event's metadata and appends a FileActivity.
func (a *FilesAdapter) emit(ctx context.Context, path string) {
	a.mu.Lock()
	op, ok := a.pending[path]
	delete(a.pending, path)
	delete(a.timers, path)
	a.mu.Unlock()

	if !ok {
		return
	}

	eventType := fileEventType(op)

	var sizeBytes int64

	hasSize := false

	var sniff []byte

	if info, err := os.Stat(path); err == nil {
		sizeBytes = info.Size()
		hasSize = true
		sniff = readSniff(path)
	}

	dir := filepath.Dir(path)

	var isGitRepo bool

	var branch string

	if a.git != nil {
		isGitRepo, branch = a.git.Resolve(ctx, dir)
	}

	a.store.Append(FileActivity{
		EventMeta: EventMeta{ID: a.newID(), Timestamp: a.now()},
		EventType: eventType,
		FilePath:  path,
		FileType:  classifyFileType(path, sniff),
		IsGitRepo: isGitRepo,
		GitBranch: branch,
		SizeBytes: sizeBytes,
		HasSize:   hasSize,
	})
}

// readSniff reads up to textutil.BinarySniffLength bytes of path for binary
// detection. Returns nil if the file is unreadable or was a delete event.
func readSniff(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, textutil.BinarySniffLength)

	n, _ := f.Read(buf)

	return buf[:n]
}

// classifyFileType derives a human-readable language name from a path's
// name and extension. If enry can't classify it, the file is reported as
// "binary" when its content sniff contains a null byte, else by bare
// extension.
func classifyFileType(path string, sniff []byte) string {
	if lang := enry.GetLanguage(filepath.Base(path), sniff); lang != "" {
		return lang
	}

	if textutil.IsBinary(sniff) {
		return "binary"
	}

	return filepath.Ext(path)
}

// fileEventType maps an fsnotify op to the FileEventType the FileActivity
// records. A Remove/Rename takes priority since the path no longer exists.
func fileEventType(op fsnotify.Op) FileEventType {
	switch {
	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		return FileEventDelete
	case op.Has(fsnotify.Create):
		return FileEventCreate
	default:
		return FileEventModify
	}
}

// excluded reports whether path matches a built-in or user-configured
// exclusion pattern.
func (a *FilesAdapter) excluded(path string) bool {
	return IsAlwaysExcluded(path) || matchesAny(path, a.cfg.ExcludePatterns)
}
