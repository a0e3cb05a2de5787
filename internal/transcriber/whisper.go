//go:build cgo

package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// WhisperEngine transcribes audio locally through whisper.cpp's cgo
// bindings. One model is loaded once and reused across mappings.
type WhisperEngine struct {
	model    whisper.Model
	language string
}

// NewWhisperEngine loads a ggml model from modelPath. language is passed to
// whisper.cpp verbatim; an empty string lets it auto-detect.
func NewWhisperEngine(modelPath, language string) (*WhisperEngine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}
	return &WhisperEngine{model: model, language: language}, nil
}

// Close releases the loaded model.
func (w *WhisperEngine) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}

// Transcribe processes audioFiles in order, concatenating their timelines
// so segment timestamps stay monotonic across the whole mapping even when
// it spans several audio files.
func (w *WhisperEngine) Transcribe(ctx context.Context, mappingID string, audioFiles []string) (*transcript.Artifact, error) {
	var segments []transcript.Segment
	var offset float64

	for _, path := range audioFiles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		samples, duration, err := loadWAV(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}

		wctx, err := w.model.NewContext()
		if err != nil {
			return nil, fmt.Errorf("failed to create whisper context: %w", err)
		}
		if w.language != "" {
			if err := wctx.SetLanguage(w.language); err != nil {
				return nil, fmt.Errorf("failed to set language: %w", err)
			}
		}
		if err := wctx.Process(samples, nil, nil, nil); err != nil {
			return nil, fmt.Errorf("failed to process %s: %w", path, err)
		}

		for {
			seg, err := wctx.NextSegment()
			if err != nil {
				break
			}
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			segments = append(segments, transcript.Segment{
				TStart: offset + seg.Start.Seconds(),
				TEnd:   offset + seg.End.Seconds(),
				Text:   text,
			})
		}

		offset += duration
	}

	return &transcript.Artifact{MappingID: mappingID, Segments: segments}, nil
}

// loadWAV decodes a PCM WAV file into whisper's expected float32 sample
// format and reports the file's duration in seconds.
func loadWAV(path string) ([]float32, float64, error) {
	clean := filepath.Clean(path)
	f, err := os.Open(clean)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio buffer: %w", err)
	}

	samples := make([]float32, buf.NumFrames())
	for i := 0; i < buf.NumFrames(); i++ {
		samples[i] = float32(buf.Data[i]) / 32768.0
	}

	sampleRate := float64(buf.Format.SampleRate)
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return samples, float64(buf.NumFrames()) / sampleRate, nil
}
