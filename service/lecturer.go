package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"lecture-avatar/entities"
)

var (
	ErrLecturerNotFound = errors.New("lecturer not found")
	ErrLecturerExists   = errors.New("lecturer already exists")
)

// DefaultLecturer completes partial custom asset sets.
const DefaultLecturer = "sample_lecturer"

// LecturerSuggestion is the remediation advice attached to resolution
// failures.
const LecturerSuggestion = "Upload both portrait image and voice audio files to create a new lecturer, or choose from available lecturers."

// ResolveUpdate carries the caller-visible side effects of a resolution:
// an informational message plus what actually happened.
type ResolveUpdate struct {
	Message         string
	CreatedLecturer string
	PartialCustom   bool
}

// ResolveError is a resolution failure carrying remediation advice.
type ResolveError struct {
	Name       string
	Suggestion string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("Lecturer '%s' not found. Please upload both portrait and voice files to create this lecturer, or use an existing lecturer.", e.Name)
}

func (e *ResolveError) Is(target error) bool { return target == ErrLecturerNotFound }

// LecturerService resolves named portrait/voice pairs from the flat
// portraits directory and manages the registry itself.
type LecturerService interface {
	Resolve(name string) (portrait, voice string, err error)
	ResolveOrCreate(ctx context.Context, name, customPortrait, customVoice string) (portrait, voice string, update *ResolveUpdate, err error)
	List(ctx context.Context) ([]entities.LecturerProfile, error)
	Describe(ctx context.Context, name string) (*entities.LecturerProfile, error)
	Create(ctx context.Context, name, portraitSrc, voiceSrc string) (*entities.LecturerProfile, error)
	ImageExtensions() []string
	AudioExtensions() []string
}

type lecturerService struct {
	portraitsDir string
	imageExts    []string
	audioExts    []string
}

func NewLecturerService(portraitsDir string, imageExts, audioExts []string) LecturerService {
	if len(imageExts) == 0 {
		imageExts = []string{".jpg", ".jpeg", ".png"}
	}
	if len(audioExts) == 0 {
		audioExts = []string{".wav", ".mp3", ".m4a", ".flac"}
	}
	return &lecturerService{
		portraitsDir: portraitsDir,
		imageExts:    imageExts,
		audioExts:    audioExts,
	}
}

func (s *lecturerService) ImageExtensions() []string { return s.imageExts }

func (s *lecturerService) AudioExtensions() []string { return s.audioExts }

// findPortrait probes {name}{ext} in extension-list order; first hit wins.
func (s *lecturerService) findPortrait(name string) string {
	for _, ext := range s.imageExts {
		candidate := filepath.Join(s.portraitsDir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findVoice probes {name}_voice{ext} in extension-list order.
func (s *lecturerService) findVoice(name string) string {
	for _, ext := range s.audioExts {
		candidate := filepath.Join(s.portraitsDir, name+"_voice"+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (s *lecturerService) Resolve(name string) (string, string, error) {
	portrait := s.findPortrait(name)
	if portrait == "" {
		return "", "", fmt.Errorf("%w: portrait not found for lecturer: %s", ErrLecturerNotFound, name)
	}
	voice := s.findVoice(name)
	if voice == "" {
		return "", "", fmt.Errorf("%w: voice reference not found for lecturer: %s", ErrLecturerNotFound, name)
	}
	return portrait, voice, nil
}

func (s *lecturerService) ResolveOrCreate(ctx context.Context, name, customPortrait, customVoice string) (string, string, *ResolveUpdate, error) {
	if portrait, voice, err := s.Resolve(name); err == nil {
		return portrait, voice, nil, nil
	}

	switch {
	case customPortrait != "" && customVoice != "":
		zerolog.Ctx(ctx).Info().Str("lecturer", name).Msg("creating new lecturer from uploaded files")
		if err := os.MkdirAll(s.portraitsDir, 0o755); err != nil {
			return "", "", nil, err
		}

		portrait := filepath.Join(s.portraitsDir, name+filepath.Ext(customPortrait))
		voice := filepath.Join(s.portraitsDir, name+"_voice"+filepath.Ext(customVoice))
		if err := copyFile(customPortrait, portrait); err != nil {
			return "", "", nil, err
		}
		if err := copyFile(customVoice, voice); err != nil {
			return "", "", nil, err
		}

		update := &ResolveUpdate{
			Message:         fmt.Sprintf("Created new lecturer '%s' and generating video...", name),
			CreatedLecturer: name,
		}
		return portrait, voice, update, nil

	case customPortrait != "" || customVoice != "":
		zerolog.Ctx(ctx).Warn().Str("lecturer", name).Msg("lecturer not found, combining custom files with default profile")
		defaultPortrait, defaultVoice, err := s.Resolve(DefaultLecturer)
		if err != nil {
			return "", "", nil, fmt.Errorf("Neither the requested lecturer nor %s is available", DefaultLecturer)
		}

		portrait, voice := customPortrait, customVoice
		if portrait == "" {
			portrait = defaultPortrait
		}
		if voice == "" {
			voice = defaultVoice
		}

		var used []string
		if customPortrait != "" {
			used = append(used, "portrait")
		}
		if customVoice != "" {
			used = append(used, "voice")
		}
		update := &ResolveUpdate{
			Message:       fmt.Sprintf("Using custom %s with %s fallback...", strings.Join(used, " and "), DefaultLecturer),
			PartialCustom: true,
		}
		return portrait, voice, update, nil

	default:
		err := &ResolveError{Name: name, Suggestion: LecturerSuggestion}
		zerolog.Ctx(ctx).Error().Str("lecturer", name).Msg(err.Error())
		return "", "", nil, err
	}
}

// List scans the portraits directory, deduplicating lecturers that carry
// portraits in more than one format.
func (s *lecturerService) List(ctx context.Context) ([]entities.LecturerProfile, error) {
	lecturers := []entities.LecturerProfile{}
	seen := make(map[string]bool)

	for _, ext := range s.imageExts {
		matches, err := filepath.Glob(filepath.Join(s.portraitsDir, "*"+ext))
		if err != nil {
			return nil, err
		}
		for _, portrait := range matches {
			name := strings.TrimSuffix(filepath.Base(portrait), ext)
			if seen[name] {
				continue
			}
			seen[name] = true

			lecturers = append(lecturers, entities.LecturerProfile{
				Name:         name,
				PortraitPath: portrait,
				VoicePath:    s.findVoice(name),
			})
		}
	}
	return lecturers, nil
}

func (s *lecturerService) Describe(ctx context.Context, name string) (*entities.LecturerProfile, error) {
	portrait, voice, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &entities.LecturerProfile{Name: name, PortraitPath: portrait, VoicePath: voice}, nil
}

func (s *lecturerService) Create(ctx context.Context, name, portraitSrc, voiceSrc string) (*entities.LecturerProfile, error) {
	if _, _, err := s.Resolve(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrLecturerExists, name)
	}
	if err := os.MkdirAll(s.portraitsDir, 0o755); err != nil {
		return nil, err
	}

	portrait := filepath.Join(s.portraitsDir, name+strings.ToLower(filepath.Ext(portraitSrc)))
	voice := filepath.Join(s.portraitsDir, name+"_voice"+strings.ToLower(filepath.Ext(voiceSrc)))
	if err := copyFile(portraitSrc, portrait); err != nil {
		return nil, err
	}
	if err := copyFile(voiceSrc, voice); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("lecturer", name).Str("portrait", portrait).Str("voice", voice).Msg("created new lecturer")
	return &entities.LecturerProfile{Name: name, PortraitPath: portrait, VoicePath: voice}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
