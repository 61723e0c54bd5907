package capture

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/signet-run/signet/pkg/textutil"
)

// voiceSegmentInterval is the cadence at which the voice adapter starts a
// new recording segment.
const voiceSegmentInterval = 10500 * time.Millisecond

// voiceSegmentDuration is the length of each recorded segment.
const voiceSegmentDuration = 10 * time.Second

// defaultVADThreshold is used when VoiceConfig.VADThreshold is zero.
const defaultVADThreshold = 0.3

// vadNoiseFloorDB and vadRangeDB normalize ffmpeg's mean_volume (dBFS,
// typically -91..0) into a 0..1 energy score.
const (
	vadNoiseFloorDB = 91.0
	vadRangeDB      = 91.0
)

// defaultTranscriptConfidence is used when a transcription reports no
// segments to average a confidence from.
const defaultTranscriptConfidence = 0.5

// Recorder captures one audio segment of the given duration to a WAV file
// in dir and returns its path.
type Recorder interface {
	Record(ctx context.Context, dir string, duration time.Duration) (path string, err error)
}

// VADAnalyzer reports the mean volume in dBFS of an audio file.
type VADAnalyzer interface {
	MeanVolumeDB(ctx context.Context, path string) (float64, error)
}

// TranscriptSegment is one segment of a Transcript's speech-recognition
// output, carrying the model's probability that it contains no speech.
type TranscriptSegment struct {
	NoSpeechProb float64
}

// Transcript is the result of running speech-to-text over an audio file.
type Transcript struct {
	Text     string
	Language string
	Segments []TranscriptSegment
}

// Transcriber converts an audio file into a Transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Transcript, error)
}

// VoiceConfig configures the voice adapter.
type VoiceConfig struct {
	VADThreshold   float64
	RedactKeywords []string
}

// VoiceAdapter records short audio segments, drops silent ones via a VAD
// pass, and transcribes the rest. Disabled by default; overlapping segment
// triggers are dropped via an in-flight guard.
type VoiceAdapter struct {
	cfg         VoiceConfig
	recorder    Recorder
	vad         VADAnalyzer
	transcriber Transcriber
	logger      *slog.Logger
	store       *Store[VoiceSegment]
	tempDir     string

	inFlight atomic.Bool

	// limiter bounds segment starts to one per voiceSegmentInterval even if
	// the ticker fires a catch-up burst.
	limiter *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	newID func() string
	now   func() time.Time
}

// NewVoiceAdapter creates a voice adapter. tempDir holds per-segment
// recordings and is created on Start, removed on Stop.
func NewVoiceAdapter(cfg VoiceConfig, recorder Recorder, vad VADAnalyzer, transcriber Transcriber, logger *slog.Logger, tempDir string) *VoiceAdapter {
	return &VoiceAdapter{
		cfg:         cfg,
		recorder:    recorder,
		vad:         vad,
		transcriber: transcriber,
		logger:      logger,
		store:       NewStore[VoiceSegment](DefaultFIFOCap),
		tempDir:     tempDir,
		newID:       newEventID,
		now:         time.Now,
	}
}

// Name implements Adapter.
func (a *VoiceAdapter) Name() string { return "voice" }

// Count implements Adapter.
func (a *VoiceAdapter) Count() int { return a.store.Count() }

// Trim implements Adapter.
func (a *VoiceAdapter) Trim(cutoff time.Time) int { return a.store.Trim(cutoff) }

// Since returns captures at or after since.
func (a *VoiceAdapter) Since(since time.Time) []VoiceSegment { return a.store.Since(since) }

// Start launches the segment-recording loop.
func (a *VoiceAdapter) Start(ctx context.Context) error {
	if err := os.MkdirAll(a.tempDir, 0o700); err != nil {
		return err
	}

	a.limiter = rate.NewLimiter(rate.Every(voiceSegmentInterval), 1)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.loop(runCtx)

	return nil
}

// Stop halts the recording loop and removes the adapter's temp directory.
func (a *VoiceAdapter) Stop(_ context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.done != nil {
		<-a.done
	}

	_ = os.RemoveAll(a.tempDir)

	return nil
}

func (a *VoiceAdapter) loop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(voiceSegmentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.trigger(ctx)
		}
	}
}

// trigger starts one segment if none is currently in flight; overlapping
// triggers are dropped rather than queued.
func (a *VoiceAdapter) trigger(ctx context.Context) {
	if a.limiter != nil && !a.limiter.Allow() {
		return
	}

	if !a.inFlight.CompareAndSwap(false, true) {
		a.logger.DebugContext(ctx, "capture.voice segment already in flight, dropping trigger")

		return
	}

	defer a.inFlight.Store(false)

	a.runSegment(ctx)
}

// runSegment records, VAD-gates, and transcribes one segment.
func (a *VoiceAdapter) runSegment(ctx context.Context) {
	path, err := a.recorder.Record(ctx, a.tempDir, voiceSegmentDuration)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.voice record failed", "error", err)

		return
	}

	defer os.Remove(path)

	meanDB, err := a.vad.MeanVolumeDB(ctx, path)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.voice VAD failed", "error", err)

		return
	}

	energy := normalizeVAD(meanDB)

	threshold := a.cfg.VADThreshold
	if threshold <= 0 {
		threshold = defaultVADThreshold
	}

	if energy < threshold {
		return
	}

	transcript, err := a.transcriber.Transcribe(ctx, path)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.voice transcribe failed", "error", err)

		return
	}

	text := textutil.RedactKeywords(transcript.Text, a.cfg.RedactKeywords)

	a.store.Append(VoiceSegment{
		EventMeta:       EventMeta{ID: a.newID(), Timestamp: a.now()},
		DurationSeconds: voiceSegmentDuration.Seconds(),
		Transcript:      text,
		Confidence:      transcriptConfidence(transcript),
		Language:        transcript.Language,
		IsSpeaking:      true,
	})
}

// normalizeVAD maps ffmpeg's mean_volume dBFS reading onto 0..1, where 0 is
// silence and 1 is full scale.
func normalizeVAD(meanDB float64) float64 {
	energy := (meanDB + vadNoiseFloorDB) / vadRangeDB
	return math.Min(1, math.Max(0, energy))
}

// transcriptConfidence derives a single confidence score from a
// transcript's per-segment no-speech probabilities.
func transcriptConfidence(t Transcript) float64 {
	if len(t.Segments) == 0 {
		return defaultTranscriptConfidence
	}

	var sum float64

	for _, seg := range t.Segments {
		sum += seg.NoSpeechProb
	}

	mean := sum / float64(len(t.Segments))

	return math.Min(1, math.Max(0, 1-mean))
}
