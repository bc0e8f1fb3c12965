package entities

import (
	"time"

	"lecture-avatar/constant"
)

// JobInputs captures the request parameters a job was created with.
// They are written once at creation and read-only afterwards.
type JobInputs struct {
	Text           string  `json:"text,omitempty"`
	SourceLanguage string  `json:"source_language,omitempty"`
	TargetLanguage string  `json:"target_language,omitempty"`
	LecturerName   string  `json:"lecturer_name,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	AudioPath      string  `json:"audio_path,omitempty"`
	ImagePath      string  `json:"image_path,omitempty"`
	PortraitPath   string  `json:"portrait_path,omitempty"`
	VoicePath      string  `json:"voice_path,omitempty"`
	EnhanceFace    bool    `json:"enhance_face,omitempty"`
	StillMode      bool    `json:"still_mode,omitempty"`
}

// JobResult is populated exactly once, when the job completes.
type JobResult struct {
	VideoPath          string `json:"video_path"`
	ResultURL          string `json:"result_url"`
	ArtifactURL        string `json:"artifact_url,omitempty"`
	Transcription      string `json:"transcription,omitempty"`
	OriginalText       string `json:"original_text,omitempty"`
	FinalText          string `json:"final_text,omitempty"`
	EngineUsed         string `json:"engine_used,omitempty"`
	TranslationMethod  string `json:"translation_method,omitempty"`
	UsedCustomPortrait bool   `json:"used_custom_portrait,omitempty"`
	UsedCustomVoice    bool   `json:"used_custom_voice,omitempty"`
	UsedVoiceCloning   bool   `json:"used_voice_cloning,omitempty"`
	PartialCustom      bool   `json:"partial_custom,omitempty"`
	CreatedLecturer    string `json:"created_lecturer,omitempty"`
	ImageFile          string `json:"image_file,omitempty"`
	AudioFile          string `json:"audio_file,omitempty"`
}

// JobError is populated exactly once, when the job fails.
type JobError struct {
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type Job struct {
	ID        string              `json:"id" gorm:"primaryKey"`
	Kind      constant.TaskKind   `json:"kind"`
	Status    constant.TaskStatus `json:"status"`
	Progress  int                 `json:"progress"`
	Message   string              `json:"message"`
	Inputs    JobInputs           `json:"inputs" gorm:"serializer:json"`
	Result    *JobResult          `json:"result,omitempty" gorm:"serializer:json"`
	Error     *JobError           `json:"error,omitempty" gorm:"serializer:json"`
	Logs      []LogEntry          `json:"logs,omitempty" gorm:"serializer:json"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// Clone returns a deep copy; readers never alias the stored record.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Logs != nil {
		cp.Logs = make([]LogEntry, len(j.Logs))
		copy(cp.Logs, j.Logs)
	}
	return &cp
}
