package config

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Limits      Limits        `yaml:"limits"`
	Paths       Paths         `yaml:"paths"`
	Python      Python        `yaml:"python"`
	ASR         ASR           `yaml:"asr"`
	TTS         TTS           `yaml:"tts"`
	Video       Video         `yaml:"video"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort   string `yaml:"http_port"`
	Workers    int    `yaml:"workers"`
	QueueDepth int    `yaml:"queue_depth"`
}

type Limits struct {
	MaxFileSize  int64    `yaml:"max_file_size"`
	ImageFormats []string `yaml:"image_formats"`
	AudioFormats []string `yaml:"audio_formats"`
}

type Paths struct {
	OutputDir     string `yaml:"output_dir"`
	UploadDir     string `yaml:"upload_dir"`
	PortraitsDir  string `yaml:"portraits_dir"`
	ScriptsDir    string `yaml:"scripts_dir"`
	EmbeddingsDir string `yaml:"embeddings_dir"`
}

type Python struct {
	Bin    string `yaml:"bin"`
	Device string `yaml:"device"`
}

type ASR struct {
	WhisperBin string `yaml:"whisper_bin"`
	Model      string `yaml:"model"`
}

type TTS struct {
	XTTSEnabled  bool   `yaml:"xtts_enabled"`
	GTTSEnabled  bool   `yaml:"gtts_enabled"`
	GTTSEndpoint string `yaml:"gtts_endpoint"`
	FFmpegBin    string `yaml:"ffmpeg_bin"`
}

type Video struct {
	SadTalkerDir string `yaml:"sadtalker_dir"`
}

type RabbitMQ struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	// All keys carry defaults, so a missing config file is not fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var db *sql.DB
	if viper.GetBool("database_enabled") {
		var err error
		db, err = sql.Open("postgres", viper.GetString("postgresql_host"))
		if err != nil {
			return nil, err
		}
	}

	queue := &RabbitMQ{
		Enabled:      viper.GetBool("rabbitmq_enabled"),
		Host:         viper.GetString("rabbitmq_host"),
		Port:         viper.GetInt("rabbitmq_port"),
		User:         viper.GetString("rabbitmq_user"),
		Pass:         viper.GetString("rabbitmq_pass"),
		ExchangeName: viper.GetString("rabbitmq_exchange"),
		Kind:         viper.GetString("rabbitmq_kind"),
	}

	var storage *minio.Client
	if viper.GetBool("minio.enabled") {
		var err error
		storage, err = minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:   viper.GetString("server.port"),
			Workers:    viper.GetInt("server.workers"),
			QueueDepth: viper.GetInt("server.queue_depth"),
		},
		Limits: Limits{
			MaxFileSize:  viper.GetInt64("limits.max_file_size"),
			ImageFormats: viper.GetStringSlice("limits.image_formats"),
			AudioFormats: viper.GetStringSlice("limits.audio_formats"),
		},
		Paths: Paths{
			OutputDir:     viper.GetString("paths.output_dir"),
			UploadDir:     viper.GetString("paths.upload_dir"),
			PortraitsDir:  viper.GetString("paths.portraits_dir"),
			ScriptsDir:    viper.GetString("paths.scripts_dir"),
			EmbeddingsDir: viper.GetString("paths.embeddings_dir"),
		},
		Python: Python{
			Bin:    viper.GetString("python.bin"),
			Device: viper.GetString("python.device"),
		},
		ASR: ASR{
			WhisperBin: viper.GetString("asr.whisper_bin"),
			Model:      viper.GetString("asr.model"),
		},
		TTS: TTS{
			XTTSEnabled:  viper.GetBool("tts.xtts_enabled"),
			GTTSEnabled:  viper.GetBool("tts.gtts_enabled"),
			GTTSEndpoint: viper.GetString("tts.gtts_endpoint"),
			FFmpegBin:    viper.GetString("tts.ffmpeg_bin"),
		},
		Video: Video{
			SadTalkerDir: viper.GetString("video.sadtalker_dir"),
		},
		DB:      db,
		Queue:   queue,
		Storage: storage,
	}, nil
}

func setDefaults() {
	viper.SetDefault("app.environment", "develop")
	viper.SetDefault("app.host", "0.0.0.0")
	viper.SetDefault("app.protocol", "http")
	viper.SetDefault("server.port", "9000")
	viper.SetDefault("server.workers", 4)
	viper.SetDefault("server.queue_depth", 64)
	viper.SetDefault("limits.max_file_size", 50*1024*1024)
	viper.SetDefault("limits.image_formats", []string{".jpg", ".jpeg", ".png"})
	viper.SetDefault("limits.audio_formats", []string{".wav", ".mp3", ".m4a", ".flac"})
	viper.SetDefault("paths.output_dir", "outputs")
	viper.SetDefault("paths.upload_dir", "uploads")
	viper.SetDefault("paths.portraits_dir", "portraits")
	viper.SetDefault("paths.scripts_dir", "scripts")
	viper.SetDefault("paths.embeddings_dir", "voice_embeddings")
	viper.SetDefault("python.bin", "python3")
	viper.SetDefault("python.device", "cpu")
	viper.SetDefault("asr.whisper_bin", "whisper")
	viper.SetDefault("asr.model", "base")
	viper.SetDefault("tts.xtts_enabled", true)
	viper.SetDefault("tts.gtts_enabled", true)
	viper.SetDefault("tts.gtts_endpoint", "https://translate.google.com/translate_tts")
	viper.SetDefault("tts.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("video.sadtalker_dir", "SadTalker")
	viper.SetDefault("rabbitmq_port", 5672)
	viper.SetDefault("rabbitmq_kind", "topic")
	viper.SetDefault("rabbitmq_exchange", "avatar.jobs")
}
