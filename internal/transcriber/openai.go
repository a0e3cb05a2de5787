package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/syncbridge/internal/ratelimit"
	"github.com/jackzampolin/syncbridge/internal/syncerr"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

const openAITranscribeDefaultModel = "whisper-1"

// OpenAIEngineConfig configures OpenAIEngine.
type OpenAIEngineConfig struct {
	APIKey     string
	Model      string // defaults to "whisper-1"
	RateLimit  int    // requests per minute; ratelimit.New semantics, <=0 defaults
	MaxRetries uint
	Timeout    time.Duration
	BaseURL    string       // optional (tests)
	HTTPClient *http.Client // optional (tests)
}

// OpenAIEngine transcribes audio through OpenAI's cloud speech-to-text
// endpoint using the official SDK.
type OpenAIEngine struct {
	client     openai.Client
	model      string
	limiter    *ratelimit.Limiter
	maxRetries uint
}

// NewOpenAIEngine builds an OpenAIEngine from cfg.
func NewOpenAIEngine(cfg OpenAIEngineConfig) *OpenAIEngine {
	if cfg.Model == "" {
		cfg.Model = openAITranscribeDefaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(int(cfg.MaxRetries)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEngine{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		limiter:    ratelimit.New(cfg.RateLimit),
		maxRetries: cfg.MaxRetries,
	}
}

// Transcribe sends each audio file to the transcription endpoint in turn,
// concatenating segment timelines the same way WhisperEngine does so a
// multi-file mapping ends up with one monotonic timeline.
func (e *OpenAIEngine) Transcribe(ctx context.Context, mappingID string, audioFiles []string) (*transcript.Artifact, error) {
	var segments []transcript.Segment
	var offset float64

	for _, path := range audioFiles {
		segs, duration, err := e.transcribeOne(ctx, path, offset)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segs...)
		offset += duration
	}

	return &transcript.Artifact{MappingID: mappingID, Segments: segments}, nil
}

func (e *OpenAIEngine) transcribeOne(ctx context.Context, path string, offset float64) ([]transcript.Segment, float64, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, 0, syncerr.New(syncerr.KindTransientIO, "rate limiter wait failed", err)
		}
	}

	var resp *openai.Transcription
	err := retry.Do(
		func() error {
			f, err := os.Open(filepath.Clean(path))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to open audio file: %w", err))
			}
			defer f.Close()

			params := openai.AudioTranscriptionNewParams{
				File:           f,
				Model:          openai.AudioModel(e.model),
				ResponseFormat: openai.AudioResponseFormatVerboseJSON,
			}
			r, err := e.client.Audio.Transcriptions.New(ctx, params)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.maxRetries),
		retry.Delay(2*time.Second),
	)
	if err != nil {
		return nil, 0, syncerr.New(syncerr.KindTransientIO, fmt.Sprintf("openai transcription of %s failed", path), err)
	}

	segments := make([]transcript.Segment, 0, len(resp.Segments))
	var maxEnd float64
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			TStart: offset + s.Start,
			TEnd:   offset + s.End,
			Text:   text,
		})
		if s.End > maxEnd {
			maxEnd = s.End
		}
	}
	return segments, maxEnd, nil
}
