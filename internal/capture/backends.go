package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// wellKnownToolPaths holds fallback absolute paths checked when a tool
// isn't on PATH, per spec.md's "which <tool> → well-known absolute paths
// → fallback" resolution order.
var wellKnownToolPaths = []string{
	"/usr/local/bin", "/opt/homebrew/bin", "/usr/bin", "/bin", "/snap/bin",
}

// errToolNotFound is returned when no candidate name resolves anywhere in
// the search order.
var errToolNotFound = errors.New("capture: no candidate tool found")

// resolveTool finds the first of candidates on PATH, then under each of
// wellKnownToolPaths, returning its absolute path.
func resolveTool(candidates ...string) (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}

		for _, dir := range wellKnownToolPaths {
			full := filepath.Join(dir, name)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				return full, nil
			}
		}
	}

	return "", fmt.Errorf("%w: tried %v", errToolNotFound, candidates)
}

const (
	screenResolveTimeout = 10 * time.Second
	screenOCRTimeout     = 30 * time.Second
)

// execScreenBackend resolves the focused window and OCR text by shelling
// out to platform window-inspection and OCR tools. macOS uses osascript;
// Linux uses xdotool plus tesseract. Any resolution failure is surfaced as
// an error, which the screen adapter logs and skips the tick for — never
// fatal to the daemon.
type execScreenBackend struct {
	focusedWindowTool string
	ocrTool           string
	screenshotTool    string
}

// NewScreenBackend resolves the platform-appropriate window-inspection and
// OCR tools up front. Returns an error if the current platform's required
// tools aren't discoverable; callers should treat that as "screen capture
// disabled" rather than failing daemon startup.
func NewScreenBackend() (ScreenBackend, error) {
	switch runtime.GOOS {
	case "darwin":
		osascript, err := resolveTool("osascript")
		if err != nil {
			return nil, err
		}

		screencapture, err := resolveTool("screencapture")
		if err != nil {
			return nil, err
		}

		tesseract, err := resolveTool("tesseract")
		if err != nil {
			return nil, err
		}

		return &execScreenBackend{focusedWindowTool: osascript, screenshotTool: screencapture, ocrTool: tesseract}, nil
	case "linux":
		xdotool, err := resolveTool("xdotool")
		if err != nil {
			return nil, err
		}

		screenshotTool, err := resolveTool("gnome-screenshot", "scrot", "import")
		if err != nil {
			return nil, err
		}

		tesseract, err := resolveTool("tesseract")
		if err != nil {
			return nil, err
		}

		return &execScreenBackend{focusedWindowTool: xdotool, screenshotTool: screenshotTool, ocrTool: tesseract}, nil
	default:
		return nil, fmt.Errorf("capture: screen adapter unsupported on %s", runtime.GOOS)
	}
}

// FocusedWindow implements ScreenBackend.
func (b *execScreenBackend) FocusedWindow(ctx context.Context) (app, window, bundleID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, screenResolveTimeout)
	defer cancel()

	if runtime.GOOS == "darwin" {
		return b.focusedWindowDarwin(ctx)
	}

	return b.focusedWindowLinux(ctx)
}

func (b *execScreenBackend) focusedWindowDarwin(ctx context.Context) (app, window, bundleID string, err error) {
	script := `tell application "System Events"
		set frontApp to first application process whose frontmost is true
		set appName to name of frontApp
		set bundleId to bundle identifier of frontApp
		set winName to ""
		try
			set winName to name of front window of frontApp
		end try
		return appName & "|" & bundleId & "|" & winName
	end tell`

	out, err := runCommand(ctx, b.focusedWindowTool, "-e", script)
	if err != nil {
		return "", "", "", err
	}

	parts := strings.SplitN(strings.TrimSpace(out), "|", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("capture: unexpected osascript output %q", out)
	}

	app = parts[0]
	bundleID = parts[1]

	if len(parts) == 3 {
		window = parts[2]
	}

	return app, window, bundleID, nil
}

func (b *execScreenBackend) focusedWindowLinux(ctx context.Context) (app, window, bundleID string, err error) {
	windowID, err := runCommand(ctx, b.focusedWindowTool, "getactivewindow")
	if err != nil {
		return "", "", "", err
	}

	windowID = strings.TrimSpace(windowID)

	name, err := runCommand(ctx, b.focusedWindowTool, "getwindowname", windowID)
	if err != nil {
		return "", "", "", err
	}

	class, err := runCommand(ctx, b.focusedWindowTool, "getwindowclassname", windowID)
	if err != nil {
		class = ""
	}

	return strings.TrimSpace(class), strings.TrimSpace(name), "", nil
}

// OCRText implements ScreenBackend: screenshots the display to a temp
// file, then runs tesseract against it.
func (b *execScreenBackend) OCRText(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, screenOCRTimeout)
	defer cancel()

	shotPath := filepath.Join(os.TempDir(), fmt.Sprintf("signet-screen-%d.png", time.Now().UnixNano()))
	defer os.Remove(shotPath)

	var shotArgs []string
	if runtime.GOOS == "darwin" {
		shotArgs = []string{"-x", shotPath}
	} else {
		shotArgs = []string{shotPath}
	}

	if _, err := runCommand(ctx, b.screenshotTool, shotArgs...); err != nil {
		return "", err
	}

	outBase := strings.TrimSuffix(shotPath, filepath.Ext(shotPath))

	if _, err := runCommand(ctx, b.ocrTool, shotPath, outBase); err != nil {
		return "", err
	}

	defer os.Remove(outBase + ".txt")

	text, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", err
	}

	return string(text), nil
}

const (
	voiceRecordTimeoutSlack = 5 * time.Second
	voiceVADTimeout         = 10 * time.Second
	voiceTranscribeTimeout  = 30 * time.Second
)

var meanVolumePattern = regexp.MustCompile(`mean_volume:\s*(-?[0-9.]+)\s*dB`)

// ffmpegRecorder records a mono 16kHz WAV segment via ffmpeg, using the
// platform's default audio input device.
type ffmpegRecorder struct {
	ffmpegPath string
}

// NewFFmpegRecorder resolves the system ffmpeg binary for audio recording.
func NewFFmpegRecorder() (Recorder, error) {
	path, err := resolveTool("ffmpeg")
	if err != nil {
		return nil, err
	}

	return &ffmpegRecorder{ffmpegPath: path}, nil
}

// Record implements Recorder.
func (r *ffmpegRecorder) Record(ctx context.Context, dir string, duration time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, duration+voiceRecordTimeoutSlack)
	defer cancel()

	path := filepath.Join(dir, fmt.Sprintf("segment-%d.wav", time.Now().UnixNano()))

	inputFormat, inputDevice := audioInputDevice()

	args := []string{
		"-y", "-f", inputFormat, "-i", inputDevice,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 2, 64),
		"-ac", "1", "-ar", "16000",
		path,
	}

	if _, err := runCommand(ctx, r.ffmpegPath, args...); err != nil {
		return "", err
	}

	return path, nil
}

// audioInputDevice picks ffmpeg's input format and device name per
// platform. These are the conventional defaults; a real deployment may
// need device overrides, which is a documented limitation of this
// portable backend.
func audioInputDevice() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "linux":
		return "alsa", "default"
	default:
		return "dshow", "audio=default"
	}
}

// ffmpegVAD runs ffmpeg's volumedetect filter and parses mean_volume from
// stderr, per spec.md's VAD step.
type ffmpegVAD struct {
	ffmpegPath string
}

// NewFFmpegVAD resolves the system ffmpeg binary for volume detection.
func NewFFmpegVAD() (VADAnalyzer, error) {
	path, err := resolveTool("ffmpeg")
	if err != nil {
		return nil, err
	}

	return &ffmpegVAD{ffmpegPath: path}, nil
}

// MeanVolumeDB implements VADAnalyzer.
func (v *ffmpegVAD) MeanVolumeDB(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, voiceVADTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.ffmpegPath, "-i", path, "-af", "volumedetect", "-f", "null", "-")

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	// ffmpeg with -f null writes no stdout and exits nonzero for some
	// inputs even on success; only the stderr parse result matters.
	_ = cmd.Run()

	match := meanVolumePattern.FindStringSubmatch(stderr.String())
	if match == nil {
		return 0, fmt.Errorf("capture: mean_volume not found in ffmpeg output")
	}

	db, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("capture: parse mean_volume: %w", err)
	}

	return db, nil
}

// whisperSegment mirrors one element of a whisper-cli JSON transcript's
// "segments" array.
type whisperSegment struct {
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// whisperOutput mirrors the JSON shape a local whisper CLI emits, per
// spec.md's `{text, segments:[{no_speech_prob,...}], language}` contract.
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

// whisperTranscriber shells out to a local whisper-compatible CLI
// (whisper-cli, whisper.cpp's `main`, or the Python `whisper` entrypoint)
// producing JSON on stdout.
type whisperTranscriber struct {
	whisperPath string
	modelArgs   []string
}

// NewWhisperTranscriber resolves a local whisper-family CLI. model, if
// non-empty, is passed through as a `--model` argument.
func NewWhisperTranscriber(model string) (Transcriber, error) {
	path, err := resolveTool("whisper-cli", "whisper.cpp", "whisper")
	if err != nil {
		return nil, err
	}

	var modelArgs []string
	if model != "" {
		modelArgs = []string{"--model", model}
	}

	return &whisperTranscriber{whisperPath: path, modelArgs: modelArgs}, nil
}

// Transcribe implements Transcriber.
func (t *whisperTranscriber) Transcribe(ctx context.Context, path string) (Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, voiceTranscribeTimeout)
	defer cancel()

	args := append([]string{}, t.modelArgs...)
	args = append(args, "--output-json", "--output-file", "-", path)

	out, err := runCommand(ctx, t.whisperPath, args...)
	if err != nil {
		return Transcript{}, err
	}

	var parsed whisperOutput
	if err := json.Unmarshal(extractTrailingJSON(out), &parsed); err != nil {
		return Transcript{}, fmt.Errorf("capture: parse whisper output: %w", err)
	}

	segments := make([]TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, TranscriptSegment{NoSpeechProb: s.NoSpeechProb})
	}

	return Transcript{Text: parsed.Text, Language: parsed.Language, Segments: segments}, nil
}

// extractTrailingJSON returns the substring starting at the first '{' in
// out, since some whisper CLI builds emit progress lines to stdout ahead
// of the JSON payload.
func extractTrailingJSON(out string) []byte {
	idx := strings.IndexByte(out, '{')
	if idx < 0 {
		return []byte(out)
	}

	return []byte(out[idx:])
}

// runCommand runs name with args under ctx, returning its stdout. Stderr is
// only used for the first line of the error message on failure.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("capture: %s %s: %w (%s)", name, strings.Join(args, " "), err, firstLine(stderr.String()))
	}

	return stdout.String(), nil
}

func firstLine(s string) string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	if scanner.Scan() {
		return scanner.Text()
	}

	return ""
}
