package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// commsPollInterval is how often the comms adapter polls its watched repos
// for new commits.
const commsPollInterval = 5 * time.Minute

// commsLookback bounds how far back `git log --since` looks on each poll.
const commsLookback = "20 minutes ago"

const commsLogFormat = "%H|%s|%an|%ai"

// CommsConfig configures the repos the comms adapter watches. Entries may
// use a leading "~" for the home directory and a trailing "/*" to watch
// every git-containing subdirectory of a parent.
type CommsConfig struct {
	Repos []string
}

// CommsAdapter polls configured git repositories for new commits.
type CommsAdapter struct {
	cfg    CommsConfig
	git    GitResolver
	logger *slog.Logger
	store  *Store[CommCapture]

	mu       sync.Mutex
	lastSeen map[string]string

	cancel context.CancelFunc
	done   chan struct{}

	newID func() string
	now   func() time.Time
}

// NewCommsAdapter creates a comms adapter watching the repos in cfg.
func NewCommsAdapter(cfg CommsConfig, git GitResolver, logger *slog.Logger) *CommsAdapter {
	return &CommsAdapter{
		cfg:      cfg,
		git:      git,
		logger:   logger,
		store:    NewStore[CommCapture](DefaultFIFOCap),
		lastSeen: make(map[string]string),
		newID:    newEventID,
		now:      time.Now,
	}
}

// Name implements Adapter.
func (a *CommsAdapter) Name() string { return "comms" }

// Count implements Adapter.
func (a *CommsAdapter) Count() int { return a.store.Count() }

// Trim implements Adapter.
func (a *CommsAdapter) Trim(cutoff time.Time) int { return a.store.Trim(cutoff) }

// Since returns captures at or after since.
func (a *CommsAdapter) Since(since time.Time) []CommCapture { return a.store.Since(since) }

// Start launches the polling loop.
func (a *CommsAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.loop(runCtx)

	return nil
}

// Stop halts the polling loop.
func (a *CommsAdapter) Stop(_ context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.done != nil {
		<-a.done
	}

	return nil
}

func (a *CommsAdapter) loop(ctx context.Context) {
	defer close(a.done)

	a.poll(ctx)

	ticker := time.NewTicker(commsPollInterval)
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

// poll expands every configured repo pattern and polls each resolved repo.
func (a *CommsAdapter) poll(ctx context.Context) {
	for _, repo := range a.resolveRepos() {
		a.pollRepo(ctx, repo)
	}
}

// resolveRepos expands "~" and trailing "/*" glob entries in cfg.Repos into
// a flat list of git working-tree directories.
func (a *CommsAdapter) resolveRepos() []string {
	var repos []string

	for _, pattern := range a.cfg.Repos {
		pattern = expandHome(pattern)

		if strings.HasSuffix(pattern, "/*") {
			parent := strings.TrimSuffix(pattern, "/*")

			entries, err := os.ReadDir(parent)
			if err != nil {
				continue
			}

			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}

				dir := filepath.Join(parent, entry.Name())
				if isGitDir(dir) {
					repos = append(repos, dir)
				}
			}

			continue
		}

		if isGitDir(pattern) {
			repos = append(repos, pattern)
		}
	}

	return repos
}

// pollRepo runs `git log` against repo over the commsLookback window and
// emits newest-first until the last-seen hash is reached.
func (a *CommsAdapter) pollRepo(ctx context.Context, repo string) {
	out, err := runGit(ctx, repo, "log", "--since="+commsLookback, "--format="+commsLogFormat)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.comms git log failed", "repo", repo, "error", err)

		return
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	a.mu.Lock()
	lastSeen := a.lastSeen[repo]
	a.mu.Unlock()

	var branch string

	if a.git != nil {
		_, branch = a.git.Resolve(ctx, repo)
	}

	var newest string

	for _, line := range lines {
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, "|", 4)
		if len(fields) != 4 {
			continue
		}

		hash, subject, author := fields[0], fields[1], fields[2]

		if newest == "" {
			newest = hash
		}

		if hash == lastSeen {
			break
		}

		a.store.Append(CommCapture{
			EventMeta: EventMeta{ID: a.newID(), Timestamp: a.now()},
			Source:    "git",
			Content:   subject,
			Metadata: CommMetadata{
				Repo:       filepath.Base(repo),
				RepoPath:   repo,
				Branch:     branch,
				CommitHash: hash,
				Author:     author,
			},
		})
	}

	if newest != "" {
		a.mu.Lock()
		a.lastSeen[repo] = newest
		a.mu.Unlock()
	}
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// isGitDir reports whether dir contains a .git entry.
func isGitDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info != nil
}
