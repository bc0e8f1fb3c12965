package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lecture-avatar/config"
	"lecture-avatar/constant"
	"lecture-avatar/entities"
	"lecture-avatar/repository"
)

// Notifier receives a job snapshot after every state transition.
type Notifier interface {
	Notify(job *entities.Job)
}

// EventPublisher broadcasts completed jobs to external consumers.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, job *entities.Job) error
}

// PipelineServices is the model-backed service registry the orchestrator
// dispatches stages to.
type PipelineServices struct {
	Lecturers   LecturerService
	Transcriber Transcriber
	Translator  Translator
	Speech      SpeechService
	Video       VideoSynthesizer
}

// Orchestrator runs the ordered stage sequence for each accepted job on a
// bounded worker pool. Jobs are never cancelled once dispatched.
type Orchestrator interface {
	Submit(ctx context.Context, jobID string, token repository.OwnerToken) error
	Close()
}

type queuedJob struct {
	id    string
	token repository.OwnerToken
}

type orchestrator struct {
	store    repository.JobStore
	cfg      *config.Config
	svcs     PipelineServices
	notifier Notifier
	events   EventPublisher

	queue     chan queuedJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewOrchestrator(store repository.JobStore, cfg *config.Config, svcs PipelineServices, notifier Notifier, events EventPublisher) Orchestrator {
	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = 4
	}
	depth := cfg.Server.QueueDepth
	if depth <= 0 {
		depth = 64
	}

	o := &orchestrator{
		store:    store,
		cfg:      cfg,
		svcs:     svcs,
		notifier: notifier,
		events:   events,
		queue:    make(chan queuedJob, depth),
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Submit enqueues an already-created job for background processing. When the
// queue is full it blocks until a worker frees a slot or ctx is done, so
// callers get backpressure instead of dropped jobs.
func (o *orchestrator) Submit(ctx context.Context, jobID string, token repository.OwnerToken) error {
	select {
	case o.queue <- queuedJob{id: jobID, token: token}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (o *orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.queue)
	})
	o.wg.Wait()
}

func (o *orchestrator) worker() {
	defer o.wg.Done()
	for item := range o.queue {
		// Jobs run on the process root context: there is no cancellation
		// API, and the request context is long gone by now.
		ctx := log.Logger.WithContext(context.Background())
		o.run(ctx, item.id, item.token)
	}
}

func (o *orchestrator) run(ctx context.Context, id string, token repository.OwnerToken) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", id).Msg("job vanished before processing")
		return
	}
	logger := zerolog.Ctx(ctx).With().Str("job_id", id).Str("kind", string(job.Kind)).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	var runErr error
	switch job.Kind {
	case constant.TaskKindText:
		runErr = o.runText(ctx, job, token)
	case constant.TaskKindAudio:
		runErr = o.runAudio(ctx, job, token)
	case constant.TaskKindCustomImage:
		runErr = o.runCustomImage(ctx, job, token)
	case constant.TaskKindImageAudio:
		runErr = o.runImageAudio(ctx, job, token)
	default:
		runErr = fmt.Errorf("unknown job kind: %s", job.Kind)
	}
	if runErr != nil {
		o.fail(ctx, id, token, runErr)
	}
	o.cleanup(ctx, job)
}

func (o *orchestrator) runText(ctx context.Context, job *entities.Job, token repository.OwnerToken) error {
	in := job.Inputs
	result := &entities.JobResult{
		UsedCustomPortrait: in.PortraitPath != "",
		UsedCustomVoice:    in.VoicePath != "",
	}

	o.progress(ctx, job.ID, token, 10, "Preparing text...")
	portrait, voiceRef, err := o.resolveLecturer(ctx, job.ID, token, in.LecturerName, in.PortraitPath, in.VoicePath, result)
	if err != nil {
		return &stageError{Stage: "lecturer_resolution", Err: err}
	}

	o.progress(ctx, job.ID, token, 20, "Generating speech...")
	outputDir, err := o.jobOutputDir(job.ID)
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	speechPath := filepath.Join(outputDir, "speech.wav")
	_, engine, err := o.svcs.Speech.Synthesize(ctx, SpeechRequest{
		Text:       in.Text,
		Language:   in.SourceLanguage,
		SpeakerWAV: voiceRef,
		OutputPath: speechPath,
	})
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	zerolog.Ctx(ctx).Info().Str("engine", string(engine)).Msg("speech generated")
	result.EngineUsed = string(engine)

	o.progress(ctx, job.ID, token, 60, "Generating video...")
	videoPath := filepath.Join(outputDir, "avatar_video.mp4")
	if _, err := o.svcs.Video.Synthesize(ctx, portrait, speechPath, videoPath, VideoOptions{}); err != nil {
		return &stageError{Stage: "video_synthesis", Err: err}
	}
	result.VideoPath = videoPath

	o.complete(ctx, job.ID, token, "Video generation completed", result)
	return nil
}

func (o *orchestrator) runAudio(ctx context.Context, job *entities.Job, token repository.OwnerToken) error {
	in := job.Inputs
	result := &entities.JobResult{
		UsedCustomPortrait: in.PortraitPath != "",
		UsedCustomVoice:    in.VoicePath != "",
	}

	o.progress(ctx, job.ID, token, 10, "Transcribing audio...")
	transcription, err := o.svcs.Transcriber.Transcribe(ctx, in.AudioPath, in.SourceLanguage)
	if err != nil {
		return &stageError{Stage: "transcription", Err: err}
	}
	result.Transcription = transcription.Text

	o.progress(ctx, job.ID, token, 30, "Translating text...")
	finalText := transcription.Text
	if in.SourceLanguage != in.TargetLanguage {
		var tr *TranslationResult
		if in.SourceLanguage == "auto" || in.TargetLanguage == "en" {
			tr = o.svcs.Translator.SmartTranslate(ctx, transcription.Text, in.TargetLanguage)
		} else {
			tr, err = o.svcs.Translator.Translate(ctx, transcription.Text, in.SourceLanguage, in.TargetLanguage)
			if err != nil {
				return &stageError{Stage: "translation", Err: err}
			}
		}
		finalText = tr.TranslatedText
		result.TranslationMethod = string(tr.Method)
		zerolog.Ctx(ctx).Info().
			Str("source", in.SourceLanguage).
			Str("target", in.TargetLanguage).
			Str("method", string(tr.Method)).
			Msg("translation finished")
	}
	result.FinalText = finalText

	o.progress(ctx, job.ID, token, 40, "Preparing assets...")
	portrait, voiceRef, err := o.resolveLecturer(ctx, job.ID, token, in.LecturerName, in.PortraitPath, in.VoicePath, result)
	if err != nil {
		return &stageError{Stage: "lecturer_resolution", Err: err}
	}

	o.progress(ctx, job.ID, token, 50, "Generating cloned speech...")
	outputDir, err := o.jobOutputDir(job.ID)
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	speechPath := filepath.Join(outputDir, "cloned_speech.wav")
	_, engine, err := o.svcs.Speech.Synthesize(ctx, SpeechRequest{
		Text:       finalText,
		Language:   in.TargetLanguage,
		SpeakerWAV: voiceRef,
		OutputPath: speechPath,
	})
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	zerolog.Ctx(ctx).Info().Str("engine", string(engine)).Msg("cloned speech generated")
	result.EngineUsed = string(engine)

	o.progress(ctx, job.ID, token, 80, "Generating video...")
	videoPath := filepath.Join(outputDir, "avatar_video.mp4")
	if _, err := o.svcs.Video.Synthesize(ctx, portrait, speechPath, videoPath, VideoOptions{}); err != nil {
		return &stageError{Stage: "video_synthesis", Err: err}
	}
	result.VideoPath = videoPath

	o.complete(ctx, job.ID, token, "Video generation completed", result)
	return nil
}

func (o *orchestrator) runCustomImage(ctx context.Context, job *entities.Job, token repository.OwnerToken) error {
	in := job.Inputs
	result := &entities.JobResult{
		OriginalText:     in.Text,
		UsedVoiceCloning: in.VoicePath != "",
	}

	o.progress(ctx, job.ID, token, 10, "Processing text...")
	finalText := in.Text
	if in.SourceLanguage != in.TargetLanguage {
		o.progress(ctx, job.ID, token, 20, "Translating text...")
		tr, err := o.svcs.Translator.Translate(ctx, in.Text, in.SourceLanguage, in.TargetLanguage)
		if err != nil {
			return &stageError{Stage: "translation", Err: err}
		}
		finalText = tr.TranslatedText
		result.TranslationMethod = string(tr.Method)
		zerolog.Ctx(ctx).Info().
			Str("source", in.SourceLanguage).
			Str("target", in.TargetLanguage).
			Str("original", in.Text).
			Str("translated", finalText).
			Msg("translation finished")
	}
	result.FinalText = finalText

	o.progress(ctx, job.ID, token, 40, "Generating speech...")
	outputDir, err := o.jobOutputDir(job.ID)
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	speechPath := filepath.Join(outputDir, "speech.wav")
	_, engine, err := o.svcs.Speech.Synthesize(ctx, SpeechRequest{
		Text:       finalText,
		Language:   in.TargetLanguage,
		SpeakerWAV: in.VoicePath,
		OutputPath: speechPath,
	})
	if err != nil {
		return &stageError{Stage: "speech_synthesis", Err: err}
	}
	zerolog.Ctx(ctx).Info().Str("engine", string(engine)).Bool("cloned", in.VoicePath != "").Msg("speech generated")
	result.EngineUsed = string(engine)

	o.progress(ctx, job.ID, token, 70, "Generating video...")
	videoPath := filepath.Join(outputDir, "custom_avatar_video.mp4")
	if _, err := o.svcs.Video.Synthesize(ctx, in.ImagePath, speechPath, videoPath, VideoOptions{}); err != nil {
		return &stageError{Stage: "video_synthesis", Err: err}
	}
	result.VideoPath = videoPath

	o.complete(ctx, job.ID, token, "Custom video generation completed", result)
	return nil
}

func (o *orchestrator) runImageAudio(ctx context.Context, job *entities.Job, token repository.OwnerToken) error {
	in := job.Inputs
	result := &entities.JobResult{
		ImageFile: filepath.Base(in.ImagePath),
		AudioFile: filepath.Base(in.AudioPath),
	}

	o.progress(ctx, job.ID, token, 10, "Processing image and audio...")
	if _, err := os.Stat(in.ImagePath); err != nil {
		return &stageError{Stage: "input_validation", Err: fmt.Errorf("image file not found: %s", in.ImagePath)}
	}
	if _, err := os.Stat(in.AudioPath); err != nil {
		return &stageError{Stage: "input_validation", Err: fmt.Errorf("audio file not found: %s", in.AudioPath)}
	}

	o.progress(ctx, job.ID, token, 30, "Preparing video generation...")
	outputDir, err := o.jobOutputDir(job.ID)
	if err != nil {
		return &stageError{Stage: "video_synthesis", Err: err}
	}

	o.progress(ctx, job.ID, token, 50, "Generating video with image and audio...")
	opts := VideoOptions{
		Preprocess:  "crop",
		Still:       in.StillMode,
		UseEnhancer: in.EnhanceFace,
	}
	if in.StillMode {
		opts.Preprocess = "full"
	}
	videoPath := filepath.Join(outputDir, "image_audio_video.mp4")
	if _, err := o.svcs.Video.Synthesize(ctx, in.ImagePath, in.AudioPath, videoPath, opts); err != nil {
		return &stageError{Stage: "video_synthesis", Err: err}
	}
	result.VideoPath = videoPath

	o.complete(ctx, job.ID, token, "Image + Audio video generation completed", result)
	return nil
}

// resolveLecturer wraps asset resolution so informational side effects
// (created profile, partial-custom fallback) land on the job record.
func (o *orchestrator) resolveLecturer(ctx context.Context, id string, token repository.OwnerToken, name, customPortrait, customVoice string, result *entities.JobResult) (string, string, error) {
	portrait, voice, update, err := o.svcs.Lecturers.ResolveOrCreate(ctx, name, customPortrait, customVoice)
	if err != nil {
		return "", "", err
	}
	if update != nil {
		result.CreatedLecturer = update.CreatedLecturer
		result.PartialCustom = update.PartialCustom
		o.update(ctx, id, token, func(job *entities.Job) {
			job.Message = update.Message
			appendLog(job, "INFO", update.Message)
		})
	}
	return portrait, voice, nil
}

func (o *orchestrator) jobOutputDir(id string) (string, error) {
	dir := filepath.Join(o.cfg.Paths.OutputDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job output directory: %w", err)
	}
	return dir, nil
}

func (o *orchestrator) progress(ctx context.Context, id string, token repository.OwnerToken, pct int, message string) {
	zerolog.Ctx(ctx).Info().Int("progress", pct).Msg(message)
	o.update(ctx, id, token, func(job *entities.Job) {
		if pct > job.Progress {
			job.Progress = pct
		}
		job.Message = message
		appendLog(job, "INFO", message)
	})
}

func (o *orchestrator) complete(ctx context.Context, id string, token repository.OwnerToken, message string, result *entities.JobResult) {
	result.ResultURL = "/result/" + id
	if o.cfg.Storage != nil {
		object, err := o.mirrorOutputs(ctx, id, result.VideoPath)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to mirror outputs to object storage")
		} else {
			result.ArtifactURL = object
		}
	}

	job := o.update(ctx, id, token, func(job *entities.Job) {
		job.Status = constant.TaskStatusCompleted
		job.Progress = 100
		job.Message = message
		job.Result = result
		appendLog(job, "INFO", message)
	})
	zerolog.Ctx(ctx).Info().Msg("job completed")

	if job != nil && o.events != nil {
		if err := o.events.PublishJobEvent(ctx, job); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to publish job event")
		}
	}
}

func (o *orchestrator) fail(ctx context.Context, id string, token repository.OwnerToken, cause error) {
	jobErr := &entities.JobError{Message: cause.Error()}
	var se *stageError
	if errors.As(cause, &se) {
		jobErr.Stage = se.Stage
		jobErr.Message = se.Err.Error()
	}
	var re *ResolveError
	if errors.As(cause, &re) {
		jobErr.Suggestion = re.Suggestion
	}
	zerolog.Ctx(ctx).Error().Err(cause).Str("stage", jobErr.Stage).Msg("job failed")

	job := o.update(ctx, id, token, func(job *entities.Job) {
		job.Status = constant.TaskStatusFailed
		job.Progress = 0
		job.Message = "Generation failed"
		job.Error = jobErr
		appendLog(job, "ERROR", fmt.Sprintf("Generation failed: %s", jobErr.Message))
	})

	if job != nil && o.events != nil {
		if err := o.events.PublishJobEvent(ctx, job); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to publish job event")
		}
	}
}

// cleanup removes transient uploaded inputs once the job is terminal.
// Removal errors are swallowed; the files may already be gone.
func (o *orchestrator) cleanup(ctx context.Context, job *entities.Job) {
	var paths []string
	switch job.Kind {
	case constant.TaskKindAudio:
		paths = []string{job.Inputs.AudioPath}
	case constant.TaskKindImageAudio:
		paths = []string{job.Inputs.ImagePath, job.Inputs.AudioPath}
	default:
		return
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			zerolog.Ctx(ctx).Debug().Err(err).Str("path", p).Msg("failed to remove transient input")
		}
	}
}

func (o *orchestrator) update(ctx context.Context, id string, token repository.OwnerToken, apply func(*entities.Job)) *entities.Job {
	job, err := o.store.Update(ctx, id, token, apply)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job")
		return nil
	}
	if o.notifier != nil {
		o.notifier.Notify(job)
	}
	return job
}

// mirrorOutputs uploads the whole job output directory so the narration
// track stays alongside the video, and returns the video's object name.
func (o *orchestrator) mirrorOutputs(ctx context.Context, id, videoPath string) (string, error) {
	localDir := filepath.Dir(videoPath)
	remotePrefix := filepath.Join("jobs", id)

	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(filepath.Join(remotePrefix, relativePath))

		opts := minio.PutObjectOptions{}
		if filepath.Ext(path) == ".mp4" {
			opts.ContentType = "video/mp4"
		}
		_, uploadErr := o.cfg.Storage.FPutObject(ctx, o.cfg.MinIOBucket, objectName, path, opts)
		return uploadErr
	})
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join(remotePrefix, filepath.Base(videoPath))), nil
}

// stageError tags a pipeline failure with the stage that raised it.
type stageError struct {
	Stage string
	Err   error
}

func (e *stageError) Error() string { return e.Err.Error() }

func (e *stageError) Unwrap() error { return e.Err }

func appendLog(job *entities.Job, level, message string) {
	job.Logs = append(job.Logs, entities.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	})
}
