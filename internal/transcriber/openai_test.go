package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestOpenAIEngine_TranscribeConcatenatesOffsets(t *testing.T) {
	dir := t.TempDir()
	file1 := writeFile(t, dir, "ch1.wav", "fake-audio-1")
	file2 := writeFile(t, dir, "ch2.wav", "fake-audio-2")

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if requests == 1 {
			_, _ = w.Write([]byte(`{
				"task": "transcribe", "language": "en", "duration": 10.0,
				"text": "once upon a time", "segments": [
					{"id": 0, "seek": 0, "start": 0.0, "end": 5.0, "text": "once upon a time",
					 "tokens": [], "temperature": 0, "avg_logprob": -0.1, "compression_ratio": 1.0, "no_speech_prob": 0.01}
				]
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"task": "transcribe", "language": "en", "duration": 6.0,
			"text": "the end", "segments": [
				{"id": 0, "seek": 0, "start": 0.0, "end": 6.0, "text": "the end",
				 "tokens": [], "temperature": 0, "avg_logprob": -0.1, "compression_ratio": 1.0, "no_speech_prob": 0.01}
			]
		}`))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(OpenAIEngineConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	art, err := engine.Transcribe(context.Background(), "ab-1", []string{file1, file2})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
	if len(art.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(art.Segments))
	}

	if art.Segments[0].TStart != 0 || art.Segments[0].TEnd != 5.0 {
		t.Errorf("unexpected first segment timing: %+v", art.Segments[0])
	}
	if art.Segments[1].TStart != 10.0 || art.Segments[1].TEnd != 16.0 {
		t.Errorf("expected second file's segment offset by the first file's duration, got %+v", art.Segments[1])
	}
	if art.MappingID != "ab-1" {
		t.Errorf("expected mapping id ab-1, got %q", art.MappingID)
	}
}
