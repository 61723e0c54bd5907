package capture

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/signet-run/signet/pkg/textutil"
)

// terminalPollInterval is how often the terminal adapter rereads its
// watched history files for new lines.
const terminalPollInterval = 5 * time.Second

// minCommandLen is the shortest command the terminal adapter will persist.
const minCommandLen = 2

// zshHistoryLine matches zsh's extended history format:
// ": <unix_ts>:<duration>;<cmd>".
var zshHistoryLine = regexp.MustCompile(`^: (\d+):(\d+);(.*)$`)

// TerminalConfig configures the terminal adapter's exclusion list.
type TerminalConfig struct {
	ExcludeCommands []string
}

// historyFile tracks read progress for one shell history file.
type historyFile struct {
	path      string
	shell     Shell
	lineCount int
}

// TerminalAdapter polls shell history files for new commands.
type TerminalAdapter struct {
	cfg    TerminalConfig
	logger *slog.Logger
	store  *Store[TerminalCapture]
	files  []*historyFile

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	newID func() string
	now   func() time.Time
}

// NewTerminalAdapter creates a terminal adapter watching the user's zsh and
// bash history files.
func NewTerminalAdapter(cfg TerminalConfig, logger *slog.Logger) *TerminalAdapter {
	home, _ := os.UserHomeDir()

	return &TerminalAdapter{
		cfg:    cfg,
		logger: logger,
		store:  NewStore[TerminalCapture](DefaultFIFOCap),
		files: []*historyFile{
			{path: filepath.Join(home, ".zsh_history"), shell: ShellZsh},
			{path: filepath.Join(home, ".bash_history"), shell: ShellBash},
		},
		newID: newEventID,
		now:   time.Now,
	}
}

// Name implements Adapter.
func (a *TerminalAdapter) Name() string { return "terminal" }

// Count implements Adapter.
func (a *TerminalAdapter) Count() int { return a.store.Count() }

// Trim implements Adapter.
func (a *TerminalAdapter) Trim(cutoff time.Time) int { return a.store.Trim(cutoff) }

// Since returns captures at or after since.
func (a *TerminalAdapter) Since(since time.Time) []TerminalCapture { return a.store.Since(since) }

// Start launches the polling loop.
func (a *TerminalAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.loop(runCtx)

	return nil
}

// Stop halts the polling loop.
func (a *TerminalAdapter) Stop(_ context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.done != nil {
		<-a.done
	}

	return nil
}

func (a *TerminalAdapter) loop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(terminalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll rereads every watched history file, emitting captures for lines past
// each file's last-seen line count.
func (a *TerminalAdapter) poll(ctx context.Context) {
	for _, hf := range a.files {
		a.pollFile(ctx, hf)
	}
}

func (a *TerminalAdapter) pollFile(ctx context.Context, hf *historyFile) {
	f, err := os.Open(hf.path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lineNum int

	for scanner.Scan() {
		lineNum++
		if lineNum <= hf.lineCount {
			continue
		}

		a.handleLine(scanner.Text(), hf.shell)
	}

	if err := scanner.Err(); err != nil {
		a.logger.WarnContext(ctx, "capture.terminal scan failed", "path", hf.path, "error", err)
	}

	hf.lineCount = lineNum
}

// handleLine parses, redacts, and stores one history line.
func (a *TerminalAdapter) handleLine(line string, shell Shell) {
	ts := a.now()

	cmd := line
	if shell == ShellZsh {
		if m := zshHistoryLine.FindStringSubmatch(line); m != nil {
			if unixSec, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				ts = time.Unix(unixSec, 0).UTC()
			}

			cmd = m[3]
		}
	}

	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}

	if textutil.IsSensitiveCommand(cmd) {
		cmd = textutil.RedactionMarker
	}

	cmd, ok := ApplyExclusionSubstrings(cmd, a.cfg.ExcludeCommands)
	if !ok {
		return
	}

	if len(cmd) < minCommandLen {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.Append(TerminalCapture{
		EventMeta: EventMeta{ID: a.newID(), Timestamp: ts},
		Command:   cmd,
		Shell:     shell,
	})
}
