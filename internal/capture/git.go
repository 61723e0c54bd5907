package capture

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// gitTimeout bounds every git subprocess invocation made by capture
// adapters (files-adapter branch lookups, comms-adapter log/branch calls).
const gitTimeout = 5 * time.Second

// execGitResolver shells out to the system git binary.
type execGitResolver struct{}

// NewGitResolver returns a GitResolver backed by the system git binary.
func NewGitResolver() GitResolver { return execGitResolver{} }

// Resolve implements GitResolver.
func (execGitResolver) Resolve(ctx context.Context, dir string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir

	var out bytes.Buffer

	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return false, ""
	}

	return true, strings.TrimSpace(out.String())
}

// runGit runs a git subcommand in dir with gitTimeout and returns stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var out bytes.Buffer

	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", err
	}

	return out.String(), nil
}
