package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"lecture-avatar/constant"
	"lecture-avatar/pkg/pyexec"
)

var ErrPairNotSupported = errors.New("translation pair not supported")

// marianModels maps a direction key to its Helsinki-NLP checkpoint.
// Dedicated checkpoints exist only for hi, mr, bn and ur; the remaining
// regional languages go through the multilingual indic models.
var marianModels = map[string]string{
	"hi_to_en":    "Helsinki-NLP/opus-mt-hi-en",
	"en_to_hi":    "Helsinki-NLP/opus-mt-en-hi",
	"mr_to_en":    "Helsinki-NLP/opus-mt-mr-en",
	"en_to_mr":    "Helsinki-NLP/opus-mt-en-mr",
	"bn_to_en":    "Helsinki-NLP/opus-mt-bn-en",
	"en_to_bn":    "Helsinki-NLP/opus-mt-en-bn",
	"ur_to_en":    "Helsinki-NLP/opus-mt-ur-en",
	"en_to_ur":    "Helsinki-NLP/opus-mt-en-ur",
	"auto_to_en":  "Helsinki-NLP/opus-mt-mul-en",
	"indic_to_en": "Helsinki-NLP/opus-mt-inc-en",
	"en_to_indic": "Helsinki-NLP/opus-mt-en-inc",
}

var regionalFallbackLanguages = map[string]bool{
	"ta": true, "te": true, "gu": true, "kn": true, "ml": true, "pa": true,
}

// languageNames lists every language the service accepts.
var languageNames = map[string]string{
	"hi":   "Hindi",
	"ta":   "Tamil",
	"te":   "Telugu",
	"mr":   "Marathi",
	"bn":   "Bengali",
	"gu":   "Gujarati",
	"kn":   "Kannada",
	"ml":   "Malayalam",
	"pa":   "Punjabi",
	"ur":   "Urdu",
	"en":   "English",
	"auto": "Auto-detect",
}

// TranslationResult carries the translated text and how it was produced.
type TranslationResult struct {
	SourceText     string                     `json:"source_text"`
	TranslatedText string                     `json:"translated_text"`
	SourceLang     string                     `json:"source_lang"`
	TargetLang     string                     `json:"target_lang"`
	ModelUsed      string                     `json:"model_used,omitempty"`
	Method         constant.TranslationMethod `json:"translation_method,omitempty"`
}

// Translator converts text between the supported language pairs.
// SmartTranslate never fails: pairs no model can serve degrade to an
// identity result tagged with the fallback method.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*TranslationResult, error)
	SmartTranslate(ctx context.Context, text, targetLang string) *TranslationResult
	DetectLanguage(text string) string
	SupportedLanguages() map[string]string
	RegionalLanguages() map[string]string
}

type marianTranslator struct {
	python     string
	scriptPath string
	device     string
	runner     pyexec.Runner
}

func NewTranslator(python, scriptsDir, device string, runner pyexec.Runner) Translator {
	if python == "" {
		python = "python3"
	}
	if device == "" {
		device = "cpu"
	}
	return &marianTranslator{
		python:     python,
		scriptPath: filepath.Join(scriptsDir, "marian_translate.py"),
		device:     device,
		runner:     runner,
	}
}

// modelKey resolves a language pair to a checkpoint key. "auto" sources
// use the multilingual model toward English and the Hindi model otherwise;
// regional languages pair with English through the indic models.
func modelKey(ctx context.Context, sourceLang, targetLang string) string {
	if sourceLang == "auto" {
		if targetLang == "en" {
			return "auto_to_en"
		}
		return "hi_to_en"
	}

	key := sourceLang + "_to_" + targetLang
	if _, ok := marianModels[key]; ok {
		return key
	}

	if sourceLang == "en" && regionalFallbackLanguages[targetLang] {
		zerolog.Ctx(ctx).Warn().Str("source", sourceLang).Str("target", targetLang).Msg("using fallback model en_to_indic")
		return "en_to_indic"
	}
	if regionalFallbackLanguages[sourceLang] && targetLang == "en" {
		zerolog.Ctx(ctx).Warn().Str("source", sourceLang).Str("target", targetLang).Msg("using fallback model indic_to_en")
		return "indic_to_en"
	}
	return ""
}

func (t *marianTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (*TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return &TranslationResult{
			SourceText: text,
			SourceLang: sourceLang,
			TargetLang: targetLang,
		}, nil
	}

	key := modelKey(ctx, sourceLang, targetLang)
	if key == "" {
		return nil, fmt.Errorf("%w: %s to %s", ErrPairNotSupported, sourceLang, targetLang)
	}

	translated, err := t.run(ctx, key, text)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("source", sourceLang).Str("target", targetLang).Str("model", key).Msg("translation completed")
	return &TranslationResult{
		SourceText:     text,
		TranslatedText: translated,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		ModelUsed:      key,
	}, nil
}

func (t *marianTranslator) SmartTranslate(ctx context.Context, text, targetLang string) *TranslationResult {
	res, err := t.Translate(ctx, text, "auto", targetLang)
	if err == nil {
		res.Method = constant.TranslationAuto
		return res
	}
	zerolog.Ctx(ctx).Warn().Err(err).Msg("auto translation failed")

	translated, err := t.run(ctx, "indic_to_en", text)
	if err == nil {
		zerolog.Ctx(ctx).Info().Msg("translation completed using indic multilingual model")
		return &TranslationResult{
			SourceText:     text,
			TranslatedText: translated,
			SourceLang:     "indic",
			TargetLang:     targetLang,
			ModelUsed:      "indic_to_en",
			Method:         constant.TranslationIndic,
		}
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg("indic translation failed, returning original text")

	return &TranslationResult{
		SourceText:     text,
		TranslatedText: text,
		SourceLang:     "unknown",
		TargetLang:     targetLang,
		ModelUsed:      "none",
		Method:         constant.TranslationIdentity,
	}
}

// DetectLanguage is a coarse Devanagari-vs-Latin character count; it only
// ever answers "hi" or "en".
func (t *marianTranslator) DetectLanguage(text string) string {
	devanagari, latin := 0, 0
	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			devanagari++
		case r < 128 && unicode.IsLetter(r):
			latin++
		}
	}
	if devanagari > latin {
		return "hi"
	}
	return "en"
}

func (t *marianTranslator) SupportedLanguages() map[string]string {
	out := make(map[string]string, len(languageNames))
	for code, name := range languageNames {
		out[code] = name
	}
	return out
}

// RegionalLanguages returns the supported languages minus English and the
// auto-detect pseudo code.
func (t *marianTranslator) RegionalLanguages() map[string]string {
	out := make(map[string]string, len(languageNames))
	for code, name := range languageNames {
		if code == "en" || code == "auto" {
			continue
		}
		out[code] = name
	}
	return out
}

func (t *marianTranslator) run(ctx context.Context, key, text string) (string, error) {
	textFile, err := os.CreateTemp("", "translate-*.txt")
	if err != nil {
		return "", err
	}
	defer os.Remove(textFile.Name())
	if _, err := textFile.WriteString(text); err != nil {
		textFile.Close()
		return "", err
	}
	if err := textFile.Close(); err != nil {
		return "", err
	}

	res, err := t.runner.Run(ctx, "", t.python, t.scriptPath,
		"--model", marianModels[key],
		"--text-file", textFile.Name(),
		"--device", t.device,
	)
	if err != nil {
		return "", fmt.Errorf("translation model %s failed: %s: %w", key, strings.TrimSpace(res.Stderr), err)
	}

	var out struct {
		TranslatedText string `json:"translated_text"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return "", fmt.Errorf("failed to parse translation output: %w", err)
	}
	return out.TranslatedText, nil
}
