package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lecture-avatar/config"
	"lecture-avatar/constant"
	"lecture-avatar/dto"
	"lecture-avatar/entities"
	"lecture-avatar/pkg/jobhub"
	"lecture-avatar/repository"
	"lecture-avatar/service"
)

// APIVersion is reported by the root endpoint.
const APIVersion = "1.0.0"

// ServiceDependencies bundles everything the HTTP layer dispatches to.
type ServiceDependencies struct {
	Store        repository.JobStore
	Orchestrator service.Orchestrator
	Lecturers    service.LecturerService
	Transcriber  service.Transcriber
	Translator   service.Translator
	Speech       service.SpeechService
	Encoder      service.SpeakerEncoder
	Video        service.VideoSynthesizer
	Hub          *jobhub.Hub
}

type Handler struct {
	cfg  *config.Config
	deps ServiceDependencies
}

func New(cfg *config.Config, deps ServiceDependencies) *Handler {
	return &Handler{cfg: cfg, deps: deps}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.APIInfo)
	r.GET("/health", h.Health)
	r.GET("/languages", h.Languages)

	r.POST("/generate/text", h.GenerateFromText)
	r.POST("/generate/audio", h.GenerateFromAudio)
	r.POST("/generate/video-with-image", h.GenerateWithImage)
	r.POST("/generate/image-with-audio", h.GenerateFromImageAndAudio)

	r.GET("/status/:task_id", h.Status)
	r.GET("/result/:task_id", h.Result)
	r.GET("/tasks", h.Tasks)
	r.GET("/task_logs/:task_id", h.TaskLogs)
	r.GET("/ws/status/:task_id", h.StreamStatus)

	r.GET("/lecturers", h.ListLecturers)
	r.GET("/lecturers/:lecturer_name", h.DescribeLecturer)
	r.POST("/lecturers/:lecturer_name", h.CreateLecturer)
}

func (h *Handler) APIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.APIInfo{
		Message: "AI Avatar Lecture API",
		Version: APIVersion,
		Endpoints: map[string]string{
			"text_generation":  "/generate/text",
			"audio_generation": "/generate/audio",
			"status":           "/status/{task_id}",
			"result":           "/result/{task_id}",
			"health":           "/health",
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Components: map[string]bool{
			"asr":               h.deps.Transcriber != nil,
			"translator":        h.deps.Translator != nil,
			"voice_cloner":      h.deps.Encoder != nil,
			"tts_generator":     h.deps.Speech != nil,
			"video_synthesizer": h.deps.Video != nil,
		},
	})
}

func (h *Handler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, dto.LanguagesResponse{
		SupportedLanguages:  h.deps.Translator.RegionalLanguages(),
		DefaultLanguage:     "hi",
		AutoDetectAvailable: true,
		TranslationInfo: map[string]string{
			"all_to_english":    "All supported languages can be translated to English",
			"english_to_indian": "English can be translated to most Indian languages",
			"auto_detect":       "Automatic language detection available for Indian languages",
		},
	})
}

func (h *Handler) GenerateFromText(c *gin.Context) {
	text := c.PostForm("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "text is required"})
		return
	}
	language := c.DefaultPostForm("language", "en")
	lecturerName := c.DefaultPostForm("lecturer_name", service.DefaultLecturer)
	speed := parseSpeed(c.DefaultPostForm("speed", "1.0"))

	taskID := newTaskID(constant.TaskKindText)
	taskDir, ok := h.taskDir(c, taskID)
	if !ok {
		return
	}

	portraitPath, ok := h.saveUpload(c, "portrait_file", "Portrait", h.cfg.Limits.ImageFormats, taskDir, "custom_portrait", false)
	if !ok {
		return
	}
	voicePath, ok := h.saveUpload(c, "voice_file", "Voice", h.cfg.Limits.AudioFormats, taskDir, "voice_ref", false)
	if !ok {
		return
	}

	job := &entities.Job{
		ID:      taskID,
		Kind:    constant.TaskKindText,
		Status:  constant.TaskStatusStarted,
		Message: "Processing text input...",
		Inputs: entities.JobInputs{
			Text:           text,
			SourceLanguage: language,
			LecturerName:   lecturerName,
			Speed:          speed,
			PortraitPath:   portraitPath,
			VoicePath:      voicePath,
		},
	}
	h.acceptJob(c, job, "Text generation task started")
}

func (h *Handler) GenerateFromAudio(c *gin.Context) {
	language := c.DefaultPostForm("language", "hi")
	translateTo := c.DefaultPostForm("translate_to", "en")
	lecturerName := c.DefaultPostForm("lecturer_name", service.DefaultLecturer)
	speed := parseSpeed(c.DefaultPostForm("speed", "1.0"))

	taskID := newTaskID(constant.TaskKindAudio)
	taskDir, ok := h.taskDir(c, taskID)
	if !ok {
		return
	}

	audioPath, ok := h.saveUpload(c, "audio_file", "Audio", h.cfg.Limits.AudioFormats, taskDir, "input_audio", true)
	if !ok {
		return
	}
	portraitPath, ok := h.saveUpload(c, "portrait_file", "Portrait", h.cfg.Limits.ImageFormats, taskDir, "custom_portrait", false)
	if !ok {
		return
	}
	voiceClonePath, ok := h.saveUpload(c, "voice_clone_file", "Voice clone", h.cfg.Limits.AudioFormats, taskDir, "voice_clone", false)
	if !ok {
		return
	}

	job := &entities.Job{
		ID:      taskID,
		Kind:    constant.TaskKindAudio,
		Status:  constant.TaskStatusStarted,
		Message: "Processing audio input...",
		Inputs: entities.JobInputs{
			SourceLanguage: language,
			TargetLanguage: translateTo,
			LecturerName:   lecturerName,
			Speed:          speed,
			AudioPath:      audioPath,
			PortraitPath:   portraitPath,
			VoicePath:      voiceClonePath,
		},
	}
	h.acceptJob(c, job, "Audio generation task started")
}

func (h *Handler) GenerateWithImage(c *gin.Context) {
	text := c.PostForm("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "text is required"})
		return
	}
	language := c.DefaultPostForm("language", "en")
	translateTo := c.DefaultPostForm("translate_to", "gu")
	speed := parseSpeed(c.DefaultPostForm("speed", "1.0"))

	taskID := newTaskID(constant.TaskKindCustomImage)
	taskDir, ok := h.taskDir(c, taskID)
	if !ok {
		return
	}

	imagePath, ok := h.saveUpload(c, "image_file", "Image", h.cfg.Limits.ImageFormats, taskDir, "portrait", true)
	if !ok {
		return
	}
	voicePath, ok := h.saveUpload(c, "voice_file", "Voice", h.cfg.Limits.AudioFormats, taskDir, "voice_ref", false)
	if !ok {
		return
	}

	job := &entities.Job{
		ID:      taskID,
		Kind:    constant.TaskKindCustomImage,
		Status:  constant.TaskStatusStarted,
		Message: "Processing custom image and text...",
		Inputs: entities.JobInputs{
			Text:           text,
			SourceLanguage: language,
			TargetLanguage: translateTo,
			Speed:          speed,
			ImagePath:      imagePath,
			VoicePath:      voicePath,
		},
	}
	h.acceptJob(c, job, "Custom image video generation task started")
}

func (h *Handler) GenerateFromImageAndAudio(c *gin.Context) {
	lecturerName := c.DefaultPostForm("lecturer_name", "custom_image_audio")
	enhanceFace := parseBool(c.DefaultPostForm("enhance_face", "true"), true)
	stillMode := parseBool(c.DefaultPostForm("still_mode", "true"), true)

	taskID := newTaskID(constant.TaskKindImageAudio)
	taskDir, ok := h.taskDir(c, taskID)
	if !ok {
		return
	}

	imagePath, ok := h.saveUpload(c, "image_file", "Image", h.cfg.Limits.ImageFormats, taskDir, "input_image", true)
	if !ok {
		return
	}
	audioPath, ok := h.saveUpload(c, "audio_file", "Audio", h.cfg.Limits.AudioFormats, taskDir, "input_audio", true)
	if !ok {
		return
	}

	job := &entities.Job{
		ID:      taskID,
		Kind:    constant.TaskKindImageAudio,
		Status:  constant.TaskStatusStarted,
		Message: "Processing image and audio...",
		Inputs: entities.JobInputs{
			LecturerName: lecturerName,
			ImagePath:    imagePath,
			AudioPath:    audioPath,
			EnhanceFace:  enhanceFace,
			StillMode:    stillMode,
		},
	}
	h.acceptJob(c, job, "Image + Audio video generation started")
}

func (h *Handler) Status(c *gin.Context) {
	job, ok := h.findJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusOf(job))
}

func (h *Handler) Result(c *gin.Context) {
	job, ok := h.findJob(c)
	if !ok {
		return
	}
	if job.Status != constant.TaskStatusCompleted {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "Task not completed"})
		return
	}
	if job.Result == nil || job.Result.VideoPath == "" {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Result file not found"})
		return
	}
	if _, err := os.Stat(job.Result.VideoPath); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Result file not found"})
		return
	}
	c.FileAttachment(job.Result.VideoPath, fmt.Sprintf("lecturer_avatar_%s.mp4", job.ID))
}

func (h *Handler) Tasks(c *gin.Context) {
	jobs, err := h.deps.Store.List(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to list tasks"})
		return
	}

	summaries := make([]dto.TaskSummary, 0, len(jobs))
	for _, job := range jobs {
		s := dto.TaskSummary{
			TaskID:    job.ID,
			Status:    string(job.Status),
			Progress:  job.Progress,
			Message:   job.Message,
			CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
			TaskType:  string(job.Kind),
		}
		if job.Result != nil {
			s.ResultURL = job.Result.ResultURL
			s.UsedCustomPortrait = job.Result.UsedCustomPortrait
			s.UsedCustomVoice = job.Result.UsedCustomVoice
		}
		if job.Error != nil {
			s.Error = job.Error.Message
		}
		summaries = append(summaries, s)
	}
	c.JSON(http.StatusOK, dto.TaskListResponse{TotalTasks: len(summaries), Tasks: summaries})
}

func (h *Handler) TaskLogs(c *gin.Context) {
	job, ok := h.findJob(c)
	if !ok {
		return
	}
	logs := make([]dto.TaskLogEntry, 0, len(job.Logs))
	for _, entry := range job.Logs {
		logs = append(logs, dto.TaskLogEntry{
			Timestamp: entry.Timestamp.Format("2006-01-02 15:04:05"),
			Level:     entry.Level,
			Message:   entry.Message,
		})
	}
	c.JSON(http.StatusOK, dto.TaskLogsResponse{TaskID: job.ID, Logs: logs})
}

// acceptJob persists the job in its initial started state and hands it to
// the orchestrator. The response goes out before any stage has run.
func (h *Handler) acceptJob(c *gin.Context, job *entities.Job, message string) {
	ctx := c.Request.Context()
	token, err := h.deps.Store.Create(ctx, job)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID).Msg("failed to create job")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to create task"})
		return
	}
	if err := h.deps.Orchestrator.Submit(ctx, job.ID, token); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue job")
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Detail: "server is not accepting new tasks"})
		return
	}

	zerolog.Ctx(ctx).Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("job accepted")
	c.JSON(http.StatusOK, dto.GenerationResponse{
		TaskID:  job.ID,
		Status:  string(constant.TaskStatusStarted),
		Message: message,
	})
}

func (h *Handler) findJob(c *gin.Context) (*entities.Job, bool) {
	job, err := h.deps.Store.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Task not found"})
		} else {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to load task"})
		}
		return nil, false
	}
	return job, true
}

func (h *Handler) taskDir(c *gin.Context, taskID string) (string, bool) {
	dir := filepath.Join(h.cfg.Paths.OutputDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("dir", dir).Msg("failed to create task directory")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to create task directory"})
		return "", false
	}
	return dir, true
}

// saveUpload validates one multipart file against the size ceiling and the
// extension allow-list, then stores it under dir as base+ext. On rejection
// it writes the error response itself and returns ok=false. A missing
// optional file yields ("", true).
func (h *Handler) saveUpload(c *gin.Context, field, label string, allowed []string, dir, base string, required bool) (string, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return "", true
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: fmt.Sprintf("%s is required", field)})
		return "", false
	}

	if file.Size > h.cfg.Limits.MaxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Detail: fmt.Sprintf("%s file too large", label)})
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !extAllowed(allowed, ext) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: fmt.Sprintf("Unsupported %s format", strings.ToLower(label))})
		return "", false
	}

	dst := filepath.Join(dir, base+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", dst).Msg("failed to store upload")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to store uploaded file"})
		return "", false
	}
	return dst, true
}

func statusOf(job *entities.Job) dto.StatusResponse {
	resp := dto.StatusResponse{
		TaskID:   job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Message:  job.Message,
	}
	if job.Result != nil {
		resp.ResultURL = job.Result.ResultURL
	}
	if job.Error != nil {
		resp.Error = job.Error.Message
		resp.Suggestion = job.Error.Suggestion
	}
	return resp
}

// newTaskID builds ids like "audio_20250825_143052_123456": kind prefix,
// creation timestamp, microseconds for collision avoidance.
func newTaskID(kind constant.TaskKind) string {
	now := time.Now()
	return fmt.Sprintf("%s_%s_%06d", kind.IDPrefix(), now.Format("20060102_150405"), now.Nanosecond()/1000)
}

func extAllowed(allowed []string, ext string) bool {
	for _, a := range allowed {
		if a == ext {
			return true
		}
	}
	return false
}

func parseSpeed(raw string) float64 {
	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil || speed <= 0 {
		return 1.0
	}
	return speed
}

func parseBool(raw string, fallback bool) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
