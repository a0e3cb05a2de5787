// Package transcriber turns a mapping's audio files into a transcript
// artifact. Two engines are provided, a local whisper.cpp binding and a
// cloud OpenAI client; neither's transcription quality is evaluated or
// tuned here.
package transcriber

import (
	"context"

	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// Engine produces a transcript.Artifact for one mapping from its audio
// files. It satisfies jobctl.Transcriber structurally.
type Engine interface {
	Transcribe(ctx context.Context, mappingID string, audioFiles []string) (*transcript.Artifact, error)
}
