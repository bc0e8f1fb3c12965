package dto

// GenerationResponse acknowledges an accepted generation job.
type GenerationResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StatusResponse is the polling projection of a job.
type StatusResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
	ResultURL  string `json:"result_url,omitempty"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// TaskSummary is one row of the task listing.
type TaskSummary struct {
	TaskID             string `json:"task_id"`
	Status             string `json:"status"`
	Progress           int    `json:"progress"`
	Message            string `json:"message"`
	CreatedAt          string `json:"created_at"`
	TaskType           string `json:"task_type"`
	ResultURL          string `json:"result_url,omitempty"`
	Error              string `json:"error,omitempty"`
	UsedCustomPortrait bool   `json:"used_custom_portrait"`
	UsedCustomVoice    bool   `json:"used_custom_voice"`
}

type TaskListResponse struct {
	TotalTasks int           `json:"total_tasks"`
	Tasks      []TaskSummary `json:"tasks"`
}

type TaskLogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type TaskLogsResponse struct {
	TaskID string         `json:"task_id"`
	Logs   []TaskLogEntry `json:"logs"`
}

// LecturerDetail describes one lecturer, including the remediation payload
// when the profile is incomplete or missing.
type LecturerDetail struct {
	Name           string            `json:"name"`
	Exists         bool              `json:"exists"`
	Portrait       string            `json:"portrait,omitempty"`
	VoiceReference string            `json:"voice_reference,omitempty"`
	Message        string            `json:"message"`
	Requirements   map[string]string `json:"requirements,omitempty"`
}

type LecturerCreatedResponse struct {
	Name           string `json:"name"`
	Created        bool   `json:"created"`
	Portrait       string `json:"portrait"`
	VoiceReference string `json:"voice_reference"`
	Message        string `json:"message"`
}

type LanguagesResponse struct {
	SupportedLanguages  map[string]string `json:"supported_languages"`
	DefaultLanguage     string            `json:"default_language"`
	AutoDetectAvailable bool              `json:"auto_detect_available"`
	TranslationInfo     map[string]string `json:"translation_info"`
}

type HealthResponse struct {
	Status     string          `json:"status"`
	Timestamp  string          `json:"timestamp"`
	Components map[string]bool `json:"components"`
}

// APIInfo is the root endpoint payload.
type APIInfo struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// ErrorResponse mirrors the {"detail": ...} error body clients already
// parse.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
