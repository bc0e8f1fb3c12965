package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/constant"
	"lecture-avatar/pkg/pyexec"
)

// translationRunner answers every model call with a fixed translation and
// records which text each model received.
func translationRunner(t *testing.T, translated string, texts *map[string]string) *fakeRunner {
	t.Helper()
	return &fakeRunner{
		run: func(ctx context.Context, dir, name string, args ...string) (pyexec.Result, error) {
			if texts != nil {
				payload, err := os.ReadFile(argValue(args, "--text-file"))
				require.NoError(t, err)
				(*texts)[argValue(args, "--model")] = string(payload)
			}
			return pyexec.Result{Stdout: fmt.Sprintf(`{"translated_text": %q}`, translated)}, nil
		},
	}
}

func TestTranslateDedicatedPair(t *testing.T) {
	texts := map[string]string{}
	runner := translationRunner(t, "welcome to the lecture", &texts)
	tr := NewTranslator("python3", "scripts", "cpu", runner)

	res, err := tr.Translate(context.Background(), "व्याख्यान में आपका स्वागत है", "hi", "en")
	require.NoError(t, err)

	assert.Equal(t, "welcome to the lecture", res.TranslatedText)
	assert.Equal(t, "hi", res.SourceLang)
	assert.Equal(t, "en", res.TargetLang)
	assert.Equal(t, "hi_to_en", res.ModelUsed)
	assert.Equal(t, "व्याख्यान में आपका स्वागत है", texts["Helsinki-NLP/opus-mt-hi-en"])

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "cpu", argValue(runner.calls[0], "--device"))
}

func TestTranslateRegionalFallsBackToIndicModels(t *testing.T) {
	tr := NewTranslator("python3", "scripts", "cpu", translationRunner(t, "out", nil))

	res, err := tr.Translate(context.Background(), "text", "gu", "en")
	require.NoError(t, err)
	assert.Equal(t, "indic_to_en", res.ModelUsed)

	res, err = tr.Translate(context.Background(), "text", "en", "ta")
	require.NoError(t, err)
	assert.Equal(t, "en_to_indic", res.ModelUsed)
}

func TestTranslateUnsupportedPair(t *testing.T) {
	tr := NewTranslator("python3", "scripts", "cpu", &fakeRunner{})

	_, err := tr.Translate(context.Background(), "text", "ta", "hi")
	assert.ErrorIs(t, err, ErrPairNotSupported)
}

func TestTranslateEmptyTextSkipsModel(t *testing.T) {
	runner := &fakeRunner{}
	tr := NewTranslator("python3", "scripts", "cpu", runner)

	res, err := tr.Translate(context.Background(), "   ", "hi", "en")
	require.NoError(t, err)
	assert.Empty(t, res.TranslatedText)
	assert.Empty(t, runner.calls)
}

func TestSmartTranslateUsesMultilingualModel(t *testing.T) {
	tr := NewTranslator("python3", "scripts", "cpu", translationRunner(t, "hello", nil))

	res := tr.SmartTranslate(context.Background(), "नमस्ते", "en")
	assert.Equal(t, "hello", res.TranslatedText)
	assert.Equal(t, "auto_to_en", res.ModelUsed)
	assert.Equal(t, constant.TranslationAuto, res.Method)
}

func TestSmartTranslateFallsBackToIndic(t *testing.T) {
	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args ...string) (pyexec.Result, error) {
			call++
			if call == 1 {
				return pyexec.Result{Stderr: "model load failed"}, errors.New("exit status 1")
			}
			return pyexec.Result{Stdout: `{"translated_text": "hello"}`}, nil
		},
	}
	tr := NewTranslator("python3", "scripts", "cpu", runner)

	res := tr.SmartTranslate(context.Background(), "வணக்கம்", "en")
	assert.Equal(t, "hello", res.TranslatedText)
	assert.Equal(t, "indic_to_en", res.ModelUsed)
	assert.Equal(t, "indic", res.SourceLang)
	assert.Equal(t, constant.TranslationIndic, res.Method)
}

func TestSmartTranslateNeverFails(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args ...string) (pyexec.Result, error) {
			return pyexec.Result{Stderr: "broken"}, errors.New("exit status 1")
		},
	}
	tr := NewTranslator("python3", "scripts", "cpu", runner)

	res := tr.SmartTranslate(context.Background(), "some text", "en")
	assert.Equal(t, "some text", res.TranslatedText)
	assert.Equal(t, "none", res.ModelUsed)
	assert.Equal(t, "unknown", res.SourceLang)
	assert.Equal(t, constant.TranslationIdentity, res.Method)
}

func TestDetectLanguage(t *testing.T) {
	tr := NewTranslator("python3", "scripts", "cpu", &fakeRunner{})

	assert.Equal(t, "hi", tr.DetectLanguage("नमस्ते दुनिया"))
	assert.Equal(t, "en", tr.DetectLanguage("hello world"))
	assert.Equal(t, "en", tr.DetectLanguage("hello नमस्ते and more latin text"))
}

func TestRegionalLanguagesExcludePseudoCodes(t *testing.T) {
	tr := NewTranslator("python3", "scripts", "cpu", &fakeRunner{})

	regional := tr.RegionalLanguages()
	assert.Len(t, regional, 10)
	assert.NotContains(t, regional, "en")
	assert.NotContains(t, regional, "auto")
	assert.Equal(t, "Hindi", regional["hi"])

	supported := tr.SupportedLanguages()
	assert.Len(t, supported, 12)
	assert.Equal(t, "Auto-detect", supported["auto"])
}
