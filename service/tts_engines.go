package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lecture-avatar/constant"
	"lecture-avatar/pkg/pyexec"
)

// xttsLanguages is the fixed list the XTTS v2 checkpoint was trained on.
var xttsLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "pl", "tr", "ru",
	"nl", "cs", "ar", "zh-cn", "hu", "ko", "ja", "hi",
}

type xttsEngine struct {
	python     string
	scriptPath string
	device     string
	available  bool
	runner     pyexec.Runner
}

// NewXTTSEngine wraps the Coqui XTTS v2 script. The engine is unavailable
// when disabled or when the python binary cannot be resolved.
func NewXTTSEngine(python, scriptsDir, device string, enabled bool, runner pyexec.Runner) Engine {
	if python == "" {
		python = "python3"
	}
	if device == "" {
		device = "cpu"
	}

	eng := &xttsEngine{
		python:     python,
		scriptPath: filepath.Join(scriptsDir, "xtts_speak.py"),
		device:     device,
		runner:     runner,
	}
	if enabled {
		if _, err := exec.LookPath(python); err == nil {
			eng.available = true
		}
	}
	return eng
}

func (e *xttsEngine) Name() constant.EngineName { return constant.EngineXTTS }

func (e *xttsEngine) Available() bool { return e.available }

func (e *xttsEngine) SupportsCloning() bool { return true }

func (e *xttsEngine) Languages() []string { return xttsLanguages }

func (e *xttsEngine) Supports(language string) bool {
	for _, lang := range xttsLanguages {
		if lang == language {
			return true
		}
	}
	return false
}

func (e *xttsEngine) Synthesize(ctx context.Context, req SpeechRequest) (string, error) {
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("xtts_%s.wav", uuid.NewString()))
	}

	textFile, err := writeTextFile(req.Text, "xtts-*.txt")
	if err != nil {
		return "", err
	}
	defer os.Remove(textFile)

	args := []string{
		e.scriptPath,
		"--text-file", textFile,
		"--language", req.Language,
		"--output", outputPath,
		"--device", e.device,
	}
	if req.SpeakerWAV != "" {
		args = append(args, "--speaker-wav", req.SpeakerWAV)
	}

	res, err := e.runner.Run(ctx, "", e.python, args...)
	if err != nil {
		return "", fmt.Errorf("xtts synthesis failed: %s: %w", strings.TrimSpace(res.Stderr), err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("xtts completed but output file is missing: %w", err)
	}
	return outputPath, nil
}

// gttsLanguages is what the cloud phrase endpoint accepts here.
var gttsLanguages = []string{
	"en", "hi", "bn", "gu", "kn", "ml", "mr", "ne", "pa", "ta", "te", "ur",
}

// gttsMaxChunkChars bounds the text length per phrase request.
const gttsMaxChunkChars = 100

type gttsEngine struct {
	endpoint  string
	client    *http.Client
	ffmpeg    string
	available bool
	runner    pyexec.Runner
}

// NewGTTSEngine synthesizes speech through the cloud phrase endpoint. Long
// text is split into phrase-sized chunks and the MP3 responses are
// concatenated; WAV outputs go through an ffmpeg conversion.
func NewGTTSEngine(endpoint, ffmpeg string, enabled bool, client *http.Client, runner pyexec.Runner) Engine {
	if endpoint == "" {
		endpoint = "https://translate.google.com/translate_tts"
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &gttsEngine{
		endpoint:  endpoint,
		client:    client,
		ffmpeg:    ffmpeg,
		available: enabled,
		runner:    runner,
	}
}

func (e *gttsEngine) Name() constant.EngineName { return constant.EngineGTTS }

func (e *gttsEngine) Available() bool { return e.available }

func (e *gttsEngine) SupportsCloning() bool { return false }

func (e *gttsEngine) Languages() []string { return gttsLanguages }

func (e *gttsEngine) Supports(language string) bool {
	for _, lang := range gttsLanguages {
		if lang == language {
			return true
		}
	}
	return false
}

func (e *gttsEngine) Synthesize(ctx context.Context, req SpeechRequest) (string, error) {
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("gtts_%s.mp3", uuid.NewString()))
	}

	wantWAV := strings.EqualFold(filepath.Ext(outputPath), ".wav")
	mp3Path := outputPath
	if wantWAV {
		mp3Path = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".mp3"
	}

	var audio []byte
	for _, chunk := range splitTTSChunks(req.Text, gttsMaxChunkChars) {
		part, err := e.fetchChunk(ctx, chunk, req.Language)
		if err != nil {
			return "", err
		}
		audio = append(audio, part...)
	}
	if err := os.WriteFile(mp3Path, audio, 0o644); err != nil {
		return "", err
	}

	if !wantWAV {
		return mp3Path, nil
	}

	res, err := e.runner.Run(ctx, "", e.ffmpeg,
		"-i", mp3Path,
		"-acodec", "pcm_s16le",
		"-ar", "22050",
		outputPath, "-y",
	)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Str("stderr", strings.TrimSpace(res.Stderr)).Msg("ffmpeg conversion failed, keeping MP3 format")
		return mp3Path, nil
	}
	os.Remove(mp3Path)
	return outputPath, nil
}

// fetchChunk requests one phrase, retrying transient failures.
func (e *gttsEngine) fetchChunk(ctx context.Context, text, language string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", language)
	q.Set("client", "tw-ob")
	requestURL := e.endpoint + "?" + q.Encode()

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("phrase synthesis returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("phrase synthesis returned status %d", resp.StatusCode))
		}
		return io.ReadAll(resp.Body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	part, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return nil, fmt.Errorf("gtts synthesis failed: %w", err)
	}
	return part, nil
}

// splitTTSChunks breaks text into pieces the phrase endpoint accepts,
// cutting at punctuation or whitespace where possible.
func splitTTSChunks(text string, maxChars int) []string {
	var chunks []string
	remaining := []rune(strings.TrimSpace(text))
	for len(remaining) > 0 {
		if len(remaining) <= maxChars {
			chunks = append(chunks, string(remaining))
			break
		}

		cut := maxChars
		for i := maxChars - 1; i > 0; i-- {
			if isChunkBoundary(remaining[i]) {
				cut = i + 1
				break
			}
		}

		if chunk := strings.TrimSpace(string(remaining[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))
	}
	return chunks
}

func isChunkBoundary(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return unicode.IsSpace(r)
}

type espeakEngine struct {
	binary    string
	available bool
	runner    pyexec.Runner
}

// NewEspeakEngine is the offline system-voice fallback. It accepts any
// language but produces the least natural output.
func NewEspeakEngine(binary string, runner pyexec.Runner) Engine {
	if binary == "" {
		binary = "espeak-ng"
	}
	eng := &espeakEngine{binary: binary, runner: runner}
	if _, err := exec.LookPath(binary); err == nil {
		eng.available = true
	}
	return eng
}

func (e *espeakEngine) Name() constant.EngineName { return constant.EngineEspeak }

func (e *espeakEngine) Available() bool { return e.available }

func (e *espeakEngine) SupportsCloning() bool { return false }

func (e *espeakEngine) Supports(language string) bool { return true }

func (e *espeakEngine) Languages() []string { return []string{"en"} }

func (e *espeakEngine) Synthesize(ctx context.Context, req SpeechRequest) (string, error) {
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("espeak_%s.wav", uuid.NewString()))
	}

	res, err := e.runner.Run(ctx, "", e.binary,
		"-w", outputPath,
		"-s", "150",
		"-a", "180",
		req.Text,
	)
	if err != nil {
		return "", fmt.Errorf("espeak synthesis failed: %s: %w", strings.TrimSpace(res.Stderr), err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("espeak failed to create audio file")
	}
	return outputPath, nil
}

// writeTextFile stores text in a temp file for scripts that take file
// arguments instead of argv text.
func writeTextFile(text, pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
