// Package capture runs the adapters that ambiently observe a developer's
// machine — screen, files, terminal, git commits, and voice — and hold
// their output in bounded in-memory stores for the refiner scheduler to
// read back out as capture bundles.
package capture

import "time"

// Event is the sum type produced by every adapter. Each variant carries its
// own fields; Meta returns the two fields common to all of them.
type Event interface {
	Meta() EventMeta
}

// EventMeta is embedded by every concrete event variant.
type EventMeta struct {
	ID        string
	Timestamp time.Time
}

// Meta returns em unchanged, satisfying Event for types that embed EventMeta.
func (em EventMeta) Meta() EventMeta { return em }

// FileEventType enumerates the filesystem change kinds FileActivity reports.
type FileEventType string

const (
	FileEventCreate FileEventType = "create"
	FileEventModify FileEventType = "modify"
	FileEventDelete FileEventType = "delete"
)

// Shell enumerates the shells TerminalCapture recognizes.
type Shell string

const (
	ShellZsh  Shell = "zsh"
	ShellBash Shell = "bash"
)

// ScreenCapture is one screen/OCR observation.
type ScreenCapture struct {
	EventMeta
	FocusedApp    string
	FocusedWindow string
	BundleID      string
	OCRText       string
}

// FileActivity is one filesystem change observation.
type FileActivity struct {
	EventMeta
	EventType FileEventType
	FilePath  string
	FileType  string
	IsGitRepo bool
	GitBranch string
	SizeBytes int64
	HasSize   bool
}

// TerminalCapture is one shell-history line.
type TerminalCapture struct {
	EventMeta
	Command          string
	WorkingDirectory string
	Shell            Shell
}

// CommMetadata carries the git context of a CommCapture.
type CommMetadata struct {
	Repo       string
	RepoPath   string
	Branch     string
	CommitHash string
	Author     string
}

// CommCapture is one observed git commit.
type CommCapture struct {
	EventMeta
	Source   string
	Content  string
	Metadata CommMetadata
}

// VoiceSegment is one transcribed (and VAD-gated) audio segment.
type VoiceSegment struct {
	EventMeta
	DurationSeconds float64
	Transcript      string
	Confidence      float64
	Language        string
	IsSpeaking      bool
}
