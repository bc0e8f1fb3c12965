package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/pkg/pyexec"
)

func TestTranscribeParsesWhisperOutput(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "lecture.wav")
	mustWriteFile(t, audio, "wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			outDir := argValue(args, "--output_dir")
			require.NotEmpty(t, outDir)
			mustWriteFile(t, filepath.Join(outDir, "lecture.json"),
				`{"text": "  Namaste, welcome to the class.  ", "language": "hi", "segments": [{"start": 0, "end": 2.5, "text": "Namaste"}]}`)
			return pyexec.Result{}, nil
		},
	}

	tr := NewTranscriber("whisper", "base", runner)
	out, err := tr.Transcribe(context.Background(), audio, "hi")
	require.NoError(t, err)

	assert.Equal(t, "Namaste, welcome to the class.", out.Text)
	assert.Equal(t, "hi", out.Language)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, 2.5, out.Segments[0].End)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "whisper", call[0])
	assert.Equal(t, audio, call[1])
	assert.Equal(t, "base", argValue(call, "--model"))
	assert.Equal(t, "json", argValue(call, "--output_format"))
	assert.Equal(t, "hi", argValue(call, "--language"))
}

func TestTranscribeOmitsLanguageForAuto(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "talk.mp3")
	mustWriteFile(t, audio, "mp3")

	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			mustWriteFile(t, filepath.Join(argValue(args, "--output_dir"), "talk.json"),
				`{"text": "hello", "language": "en"}`)
			return pyexec.Result{}, nil
		},
	}

	tr := NewTranscriber("", "", runner)
	_, err := tr.Transcribe(context.Background(), audio, "auto")
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.False(t, hasArg(runner.calls[0], "--language"))
	assert.Equal(t, "base", argValue(runner.calls[0], "--model"))
}

func TestTranscribeMissingAudio(t *testing.T) {
	tr := NewTranscriber("whisper", "base", &fakeRunner{})

	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio file not found")
}

func TestTranscribeSurfacesStderr(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "lecture.wav")
	mustWriteFile(t, audio, "wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			return pyexec.Result{Stderr: "CUDA out of memory\n", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	tr := NewTranscriber("whisper", "base", runner)
	_, err := tr.Transcribe(context.Background(), audio, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whisper transcription failed")
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestTranscribeMissingTranscript(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "lecture.wav")
	mustWriteFile(t, audio, "wav")

	tr := NewTranscriber("whisper", "base", &fakeRunner{})
	_, err := tr.Transcribe(context.Background(), audio, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript json is missing")
}
