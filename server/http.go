package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lecture-avatar/config"
	"lecture-avatar/constant"
	apihandler "lecture-avatar/handler"
	"lecture-avatar/pkg/jobhub"
	"lecture-avatar/pkg/pyexec"
	"lecture-avatar/pkg/rabbitmq"
	"lecture-avatar/repository"
	"lecture-avatar/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := ensureDirectories(cfg); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to prepare working directories")
	}
	if err := service.EnsureScripts(cfg.Paths.ScriptsDir); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to install python helper scripts")
	}

	store := repository.NewMemoryStore()
	if cfg.DB != nil {
		pgStore, err := repository.NewPostgresStore(cfg.DB)
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize postgres job store")
		}
		store = pgStore
	}

	runner := pyexec.ExecRunner{}
	svcs := service.PipelineServices{
		Lecturers:   service.NewLecturerService(cfg.Paths.PortraitsDir, cfg.Limits.ImageFormats, cfg.Limits.AudioFormats),
		Transcriber: service.NewTranscriber(cfg.ASR.WhisperBin, cfg.ASR.Model, runner),
		Translator:  service.NewTranslator(cfg.Python.Bin, cfg.Paths.ScriptsDir, cfg.Python.Device, runner),
		Speech: service.NewSpeechService(
			service.NewXTTSEngine(cfg.Python.Bin, cfg.Paths.ScriptsDir, cfg.Python.Device, cfg.TTS.XTTSEnabled, runner),
			service.NewGTTSEngine(cfg.TTS.GTTSEndpoint, cfg.TTS.FFmpegBin, cfg.TTS.GTTSEnabled, nil, runner),
			service.NewEspeakEngine("espeak-ng", runner),
		),
		Video: service.NewVideoSynthesizer(cfg.Python.Bin, cfg.Video.SadTalkerDir, cfg.Python.Device, runner),
	}
	encoder := service.NewSpeakerEncoder(cfg.Python.Bin, cfg.Paths.ScriptsDir, runner)
	hub := jobhub.New()

	var events service.EventPublisher
	if cfg.Queue != nil && cfg.Queue.Enabled {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			publisher, err := rabbitmq.NewPublisher(ctx, conn, cfg.Queue)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("failed to set up job event publisher")
			} else {
				events = publisher
			}
		}
	}

	orch := service.NewOrchestrator(store, cfg, svcs, hub, events)

	deps := apihandler.ServiceDependencies{
		Store:        store,
		Orchestrator: orch,
		Lecturers:    svcs.Lecturers,
		Transcriber:  svcs.Transcriber,
		Translator:   svcs.Translator,
		Speech:       svcs.Speech,
		Encoder:      encoder,
		Video:        svcs.Video,
		Hub:          hub,
	}

	r := gin.Default()
	apihandler.New(cfg, deps).Register(r)

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", srv.Addr).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	// Let in-flight jobs finish; new submissions stopped with the listener.
	orch.Close()

	zerolog.Ctx(ctx).Info().Msg("server shutdown")
}

func ensureDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Paths.OutputDir,
		cfg.Paths.UploadDir,
		cfg.Paths.PortraitsDir,
		cfg.Paths.ScriptsDir,
		cfg.Paths.EmbeddingsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
