package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/pkg/pyexec"
)

func TestXTTSBuildsScriptInvocation(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "speech.wav")

	var sentText string
	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			payload, err := os.ReadFile(argValue(args, "--text-file"))
			require.NoError(t, err)
			sentText = string(payload)
			mustWriteFile(t, argValue(args, "--output"), "wav")
			return pyexec.Result{}, nil
		},
	}

	eng := &xttsEngine{
		python:     "python3",
		scriptPath: filepath.Join("scripts", "xtts_speak.py"),
		device:     "cuda",
		available:  true,
		runner:     runner,
	}

	path, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text:       "Welcome to thermodynamics.",
		Language:   "en",
		SpeakerWAV: "portraits/sample_lecturer_voice.wav",
		OutputPath: output,
	})
	require.NoError(t, err)
	assert.Equal(t, output, path)
	assert.Equal(t, "Welcome to thermodynamics.", sentText)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "python3", call[0])
	assert.Equal(t, filepath.Join("scripts", "xtts_speak.py"), call[1])
	assert.Equal(t, "en", argValue(call, "--language"))
	assert.Equal(t, "cuda", argValue(call, "--device"))
	assert.Equal(t, "portraits/sample_lecturer_voice.wav", argValue(call, "--speaker-wav"))
}

func TestXTTSOmitsSpeakerWithoutReference(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			mustWriteFile(t, argValue(args, "--output"), "wav")
			return pyexec.Result{}, nil
		},
	}
	eng := &xttsEngine{python: "python3", scriptPath: "xtts_speak.py", device: "cpu", available: true, runner: runner}

	_, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: filepath.Join(t.TempDir(), "out.wav"),
	})
	require.NoError(t, err)
	assert.False(t, hasArg(runner.calls[0], "--speaker-wav"))
}

func TestXTTSMissingOutputIsAnError(t *testing.T) {
	eng := &xttsEngine{python: "python3", scriptPath: "xtts_speak.py", device: "cpu", available: true, runner: &fakeRunner{}}

	_, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: filepath.Join(t.TempDir(), "out.wav"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output file is missing")
}

func TestGTTSConcatenatesChunksToMP3(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "gu", r.URL.Query().Get("tl"))
		_, _ = w.Write([]byte("mp3:" + r.URL.Query().Get("q") + ";"))
	}))
	defer server.Close()

	eng := NewGTTSEngine(server.URL, "ffmpeg", true, server.Client(), &fakeRunner{})
	output := filepath.Join(t.TempDir(), "speech.mp3")

	path, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "Hello class. Today we cover waves.", Language: "gu", OutputPath: output,
	})
	require.NoError(t, err)
	assert.Equal(t, output, path)

	audio, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "mp3:Hello class. Today we cover waves.;", string(audio))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGTTSSplitsLongText(t *testing.T) {
	var phrases []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phrases = append(phrases, r.URL.Query().Get("q"))
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	eng := NewGTTSEngine(server.URL, "ffmpeg", true, server.Client(), &fakeRunner{})
	long := strings.Repeat("This sentence pads the text well past the chunk limit. ", 4)

	_, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: long, Language: "en", OutputPath: filepath.Join(t.TempDir(), "speech.mp3"),
	})
	require.NoError(t, err)

	require.Greater(t, len(phrases), 1)
	for _, phrase := range phrases {
		assert.LessOrEqual(t, len([]rune(phrase)), gttsMaxChunkChars)
	}
}

func TestGTTSConvertsToWAV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3data"))
	}))
	defer server.Close()

	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			// Output path precedes the trailing -y flag.
			mustWriteFile(t, args[len(args)-2], "wavdata")
			return pyexec.Result{}, nil
		},
	}
	eng := NewGTTSEngine(server.URL, "ffmpeg-custom", true, server.Client(), runner)
	output := filepath.Join(t.TempDir(), "speech.wav")

	path, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: output,
	})
	require.NoError(t, err)
	assert.Equal(t, output, path)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "ffmpeg-custom", call[0])
	assert.Equal(t, "pcm_s16le", argValue(call, "-acodec"))
	assert.Equal(t, "22050", argValue(call, "-ar"))

	mp3Path := strings.TrimSuffix(output, ".wav") + ".mp3"
	_, statErr := os.Stat(mp3Path)
	assert.True(t, os.IsNotExist(statErr), "intermediate mp3 should be removed")
}

func TestGTTSKeepsMP3WhenConversionFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3data"))
	}))
	defer server.Close()

	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			return pyexec.Result{Stderr: "no ffmpeg"}, errors.New("exec: not found")
		},
	}
	eng := NewGTTSEngine(server.URL, "ffmpeg", true, server.Client(), runner)
	output := filepath.Join(t.TempDir(), "speech.wav")

	path, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: output,
	})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(output, ".wav")+".mp3", path)

	audio, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp3data", string(audio))
}

func TestGTTSRetriesTransientFailures(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("mp3data"))
	}))
	defer server.Close()

	eng := NewGTTSEngine(server.URL, "ffmpeg", true, server.Client(), &fakeRunner{})
	_, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: filepath.Join(t.TempDir(), "speech.mp3"),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGTTSDoesNotRetryClientErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	eng := NewGTTSEngine(server.URL, "ffmpeg", true, server.Client(), &fakeRunner{})
	_, err := eng.Synthesize(context.Background(), SpeechRequest{
		Text: "hello", Language: "en", OutputPath: filepath.Join(t.TempDir(), "speech.mp3"),
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestEspeakInvocation(t *testing.T) {
	output := filepath.Join(t.TempDir(), "speech.wav")
	runner := &fakeRunner{
		run: func(ctx context.Context, d, name string, args ...string) (pyexec.Result, error) {
			mustWriteFile(t, argValue(args, "-w"), "wav")
			return pyexec.Result{}, nil
		},
	}
	eng := &espeakEngine{binary: "espeak-ng", available: true, runner: runner}

	path, err := eng.Synthesize(context.Background(), SpeechRequest{Text: "hello", Language: "en", OutputPath: output})
	require.NoError(t, err)
	assert.Equal(t, output, path)

	call := runner.calls[0]
	assert.Equal(t, "espeak-ng", call[0])
	assert.Equal(t, output, argValue(call, "-w"))
	assert.Equal(t, "hello", call[len(call)-1])
}

func TestEspeakAcceptsAnyLanguage(t *testing.T) {
	eng := &espeakEngine{binary: "espeak-ng", available: true}
	assert.True(t, eng.Supports("gu"))
	assert.True(t, eng.Supports("anything"))
}

func TestSplitTTSChunks(t *testing.T) {
	assert.Empty(t, splitTTSChunks("   ", 100))
	assert.Equal(t, []string{"short text"}, splitTTSChunks("short text", 100))

	chunks := splitTTSChunks("first part, second part. third part here", 15)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 15)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
	assert.Equal(t, "first part,", chunks[0])
}
