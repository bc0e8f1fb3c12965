package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"lecture-avatar/constant"
)

var ErrNoEngine = errors.New("no suitable TTS engine available")

// SpeechRequest describes one synthesis call. SpeakerWAV is a reference
// clip for voice cloning; engines without cloning ignore it.
type SpeechRequest struct {
	Text            string
	Language        string
	SpeakerWAV      string
	OutputPath      string
	PreferredEngine constant.EngineName
}

// Engine is one concrete speech backend. Availability is probed once at
// construction, never per call. Supports gates dispatch; Languages lists
// what the engine advertises for enumeration (the system-voice fallback
// accepts any language but only advertises English).
type Engine interface {
	Name() constant.EngineName
	Available() bool
	Supports(language string) bool
	SupportsCloning() bool
	Languages() []string
	Synthesize(ctx context.Context, req SpeechRequest) (string, error)
}

// enginePreferences fixes the consultation order per language. Languages
// that the cloud engine renders better lead with it.
var enginePreferences = map[string][]constant.EngineName{
	"hi": {constant.EngineXTTS, constant.EngineGTTS, constant.EngineEspeak},
	"gu": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"bn": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"kn": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"ml": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"mr": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"pa": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"ta": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"te": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"ur": {constant.EngineGTTS, constant.EngineXTTS, constant.EngineEspeak},
	"en": {constant.EngineXTTS, constant.EngineGTTS, constant.EngineEspeak},
}

var defaultEngineOrder = []constant.EngineName{
	constant.EngineXTTS,
	constant.EngineGTTS,
	constant.EngineEspeak,
}

// SpeechService synthesizes speech with the best engine for a language:
// engines are consulted in the language's preference order and the first
// one that is available, supports the language and succeeds wins.
type SpeechService interface {
	Synthesize(ctx context.Context, req SpeechRequest) (string, constant.EngineName, error)
	SupportedLanguages() []string
	Engines() []Engine
}

type speechService struct {
	engines map[constant.EngineName]Engine
	roster  []Engine
}

func NewSpeechService(engines ...Engine) SpeechService {
	s := &speechService{
		engines: make(map[constant.EngineName]Engine, len(engines)),
		roster:  engines,
	}
	for _, eng := range engines {
		s.engines[eng.Name()] = eng
	}
	return s
}

func (s *speechService) Synthesize(ctx context.Context, req SpeechRequest) (string, constant.EngineName, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", "", errors.New("text cannot be empty")
	}

	order, ok := enginePreferences[req.Language]
	if !ok {
		order = defaultEngineOrder
	}
	if req.PreferredEngine != "" {
		reordered := make([]constant.EngineName, 0, len(order)+1)
		reordered = append(reordered, req.PreferredEngine)
		for _, name := range order {
			if name != req.PreferredEngine {
				reordered = append(reordered, name)
			}
		}
		order = reordered
	}

	var lastErr error
	for _, name := range order {
		eng, ok := s.engines[name]
		if !ok || !eng.Available() || !eng.Supports(req.Language) {
			continue
		}

		path, err := eng.Synthesize(ctx, req)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("engine", string(name)).Str("language", req.Language).Msg("engine failed")
			lastErr = err
			continue
		}

		zerolog.Ctx(ctx).Info().Str("engine", string(name)).Str("output", path).Msg("speech synthesis completed")
		return path, name, nil
	}

	if lastErr != nil {
		return "", "", lastErr
	}
	return "", "", fmt.Errorf("%w for language: %s", ErrNoEngine, req.Language)
}

// SupportedLanguages unions what the available engines advertise.
func (s *speechService) SupportedLanguages() []string {
	set := make(map[string]bool)
	for _, eng := range s.roster {
		if !eng.Available() {
			continue
		}
		for _, lang := range eng.Languages() {
			set[lang] = true
		}
	}

	out := make([]string, 0, len(set))
	for lang := range set {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

func (s *speechService) Engines() []Engine {
	return s.roster
}
