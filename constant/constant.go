package constant

type TaskStatus string

const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type TaskKind string

const (
	TaskKindText        TaskKind = "text"
	TaskKindAudio       TaskKind = "audio"
	TaskKindCustomImage TaskKind = "custom_image"
	TaskKindImageAudio  TaskKind = "image_audio"
)

// IDPrefix is the leading segment of generated task identifiers.
func (k TaskKind) IDPrefix() string {
	switch k {
	case TaskKindText:
		return "text"
	case TaskKindAudio:
		return "audio"
	case TaskKindCustomImage:
		return "custom"
	case TaskKindImageAudio:
		return "image_audio"
	default:
		return "task"
	}
}

type EngineName string

const (
	EngineXTTS   EngineName = "xtts"
	EngineGTTS   EngineName = "gtts"
	EngineEspeak EngineName = "espeak"
)

type TranslationMethod string

const (
	TranslationAuto     TranslationMethod = "auto_multilingual"
	TranslationIndic    TranslationMethod = "indic_multilingual"
	TranslationIdentity TranslationMethod = "fallback_no_translation"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
