package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"lecture-avatar/pkg/pyexec"
)

// TranscriptSegment is one timed span of recognized speech.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription carries the recognized text and the language the model
// settled on, which may differ from the caller's hint.
type Transcription struct {
	Text     string              `json:"text"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// Transcriber converts speech audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*Transcription, error)
}

type whisperTranscriber struct {
	binary string
	model  string
	runner pyexec.Runner
}

// NewTranscriber wraps the whisper CLI. model selects the checkpoint size
// (tiny, base, small, medium, large).
func NewTranscriber(binary, model string, runner pyexec.Runner) Transcriber {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "base"
	}
	return &whisperTranscriber{binary: binary, model: model, runner: runner}
}

func (t *whisperTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*Transcription, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", t.model,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "--language", lang)
	}

	zerolog.Ctx(ctx).Info().Str("audio", audioPath).Str("model", t.model).Msg("transcribing audio")
	res, err := t.runner.Run(ctx, "", t.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %s: %w", strings.TrimSpace(res.Stderr), err)
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	payload, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisper completed but transcript json is missing: %w", err)
	}

	out := &Transcription{}
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, fmt.Errorf("failed to parse transcript json: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)

	zerolog.Ctx(ctx).Info().Str("language", out.Language).Int("segments", len(out.Segments)).Msg("transcription completed")
	return out, nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
