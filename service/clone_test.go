package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/pkg/pyexec"
)

func embeddingRunner(stdout string) *fakeRunner {
	return &fakeRunner{
		run: func(ctx context.Context, dir, name string, args ...string) (pyexec.Result, error) {
			return pyexec.Result{Stdout: stdout}, nil
		},
	}
}

func TestExtractNormalizesEmbedding(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "voice.wav")
	mustWriteFile(t, audio, "wav")

	runner := embeddingRunner(`{"embedding": [3, 4]}`)
	enc := NewSpeakerEncoder("python3", "scripts", runner)

	embedding, err := enc.Extract(context.Background(), audio, "prof_sharma")
	require.NoError(t, err)
	require.Len(t, embedding, 2)
	assert.InDelta(t, 0.6, float64(embedding[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(embedding[1]), 1e-6)

	call := runner.calls[0]
	assert.Equal(t, audio, argValue(call, "--audio"))
}

func TestExtractCachesBySpeakerName(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "voice.wav")
	mustWriteFile(t, audio, "wav")

	runner := embeddingRunner(`{"embedding": [1, 0]}`)
	enc := NewSpeakerEncoder("python3", "scripts", runner)

	first, err := enc.Extract(context.Background(), audio, "prof_sharma")
	require.NoError(t, err)
	second, err := enc.Extract(context.Background(), audio, "prof_sharma")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, runner.calls, 1, "second lookup must hit the cache")
}

func TestExtractCachesByPathWithoutName(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	mustWriteFile(t, a, "wav")
	mustWriteFile(t, b, "wav")

	runner := embeddingRunner(`{"embedding": [1, 0]}`)
	enc := NewSpeakerEncoder("python3", "scripts", runner)

	_, err := enc.Extract(context.Background(), a, "")
	require.NoError(t, err)
	_, err = enc.Extract(context.Background(), b, "")
	require.NoError(t, err)

	assert.Len(t, runner.calls, 2, "different paths are distinct cache keys")
}

func TestExtractMissingAudio(t *testing.T) {
	enc := NewSpeakerEncoder("python3", "scripts", &fakeRunner{})

	_, err := enc.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio file not found")
}

func TestExtractRejectsEmptyVector(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "voice.wav")
	mustWriteFile(t, audio, "wav")

	enc := NewSpeakerEncoder("python3", "scripts", embeddingRunner(`{"embedding": []}`))
	_, err := enc.Extract(context.Background(), audio, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty vector")
}

func TestExtractSurfacesScriptFailure(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "voice.wav")
	mustWriteFile(t, audio, "wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args ...string) (pyexec.Result, error) {
			return pyexec.Result{Stderr: "librosa missing"}, errors.New("exit status 1")
		},
	}
	enc := NewSpeakerEncoder("python3", "scripts", runner)

	_, err := enc.Extract(context.Background(), audio, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "librosa missing")
}

func TestCompareIsCosineSimilarity(t *testing.T) {
	enc := NewSpeakerEncoder("python3", "scripts", &fakeRunner{})

	same := SpeakerEmbedding{0.6, 0.8}
	orthogonal := SpeakerEmbedding{-0.8, 0.6}

	assert.InDelta(t, 1.0, enc.Compare(same, same), 1e-6)
	assert.InDelta(t, 0.0, enc.Compare(same, orthogonal), 1e-6)

	short := SpeakerEmbedding{1}
	assert.InDelta(t, 0.6, enc.Compare(same, short), 1e-6)
}

func TestSaveAndLoadEmbedding(t *testing.T) {
	enc := NewSpeakerEncoder("python3", "scripts", &fakeRunner{})
	path := filepath.Join(t.TempDir(), "embeddings", "prof_sharma.json")
	embedding := SpeakerEmbedding{0.6, 0.8}
	meta := map[string]string{"source_audio": "voice.wav"}

	require.NoError(t, enc.Save(path, "prof_sharma", embedding, meta))

	loaded, loadedMeta, err := enc.Load(path)
	require.NoError(t, err)
	assert.Equal(t, embedding, loaded)
	assert.Equal(t, meta, loadedMeta)
}

func TestLoadMissingEmbedding(t *testing.T) {
	enc := NewSpeakerEncoder("python3", "scripts", &fakeRunner{})

	_, _, err := enc.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding file not found")
}

func TestNormalizeEmbeddingZeroVector(t *testing.T) {
	vec := []float32{0, 0, 0}
	out := normalizeEmbedding(vec)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.False(t, math.IsNaN(float64(v)))
		assert.Zero(t, v)
	}
}
