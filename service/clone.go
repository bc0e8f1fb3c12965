package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lecture-avatar/pkg/pyexec"
)

// SpeakerEmbedding is a unit-normalized voice-characteristics vector.
type SpeakerEmbedding []float32

// SpeakerEncoder extracts voice embeddings from reference audio. Results
// are cached by speaker name, or by source path when no name is given, so
// repeated lookups never rerun extraction.
type SpeakerEncoder interface {
	Extract(ctx context.Context, audioPath, speakerName string) (SpeakerEmbedding, error)
	Compare(a, b SpeakerEmbedding) float64
	Save(path, speakerName string, embedding SpeakerEmbedding, metadata map[string]string) error
	Load(path string) (SpeakerEmbedding, map[string]string, error)
}

type speakerEncoder struct {
	python     string
	scriptPath string
	runner     pyexec.Runner

	mu    sync.RWMutex
	cache map[string]SpeakerEmbedding
}

func NewSpeakerEncoder(python, scriptsDir string, runner pyexec.Runner) SpeakerEncoder {
	if python == "" {
		python = "python3"
	}
	return &speakerEncoder{
		python:     python,
		scriptPath: filepath.Join(scriptsDir, "speaker_embed.py"),
		runner:     runner,
		cache:      make(map[string]SpeakerEmbedding),
	}
}

func (s *speakerEncoder) Extract(ctx context.Context, audioPath, speakerName string) (SpeakerEmbedding, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	key := speakerName
	if key == "" {
		key = audioPath
	}

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		zerolog.Ctx(ctx).Info().Str("key", key).Msg("using cached speaker embedding")
		return cached, nil
	}

	zerolog.Ctx(ctx).Info().Str("audio", audioPath).Msg("extracting speaker embedding")
	res, err := s.runner.Run(ctx, "", s.python, s.scriptPath, "--audio", audioPath)
	if err != nil {
		return nil, fmt.Errorf("embedding extraction failed: %s: %w", strings.TrimSpace(res.Stderr), err)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return nil, fmt.Errorf("failed to parse embedding output: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding extraction produced an empty vector")
	}

	embedding := normalizeEmbedding(out.Embedding)

	s.mu.Lock()
	s.cache[key] = embedding
	s.mu.Unlock()

	return embedding, nil
}

// Compare returns the cosine similarity of two embeddings. Both sides are
// unit norm, so this is a plain dot product.
func (s *speakerEncoder) Compare(a, b SpeakerEmbedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

type embeddingFile struct {
	SpeakerName string            `json:"speaker_name"`
	Embedding   SpeakerEmbedding  `json:"embedding"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SavedAt     time.Time         `json:"saved_at"`
}

func (s *speakerEncoder) Save(path, speakerName string, embedding SpeakerEmbedding, metadata map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(embeddingFile{
		SpeakerName: speakerName,
		Embedding:   embedding,
		Metadata:    metadata,
		SavedAt:     time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (s *speakerEncoder) Load(path string) (SpeakerEmbedding, map[string]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding file not found: %s", path)
	}

	var file embeddingFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse embedding file: %w", err)
	}
	return file.Embedding, file.Metadata, nil
}

func normalizeEmbedding(vec []float32) SpeakerEmbedding {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return SpeakerEmbedding(vec)
	}

	out := make(SpeakerEmbedding, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
