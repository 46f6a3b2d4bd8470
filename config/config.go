package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AWS           AWSConfig
	Upload        UploadConfig
	Transcription TranscriptionConfig
	Summarization SummarizationConfig
	Worker        WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/classcribe?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings for the job queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds settings for validating bearer tokens issued by the identity provider.
type JWTConfig struct {
	Secret string
}

// AWSConfig holds AWS credentials and the S3 bucket for audio blobs.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// UploadConfig holds audio upload validation policy.
type UploadConfig struct {
	MaxFileSize int64  // bytes
	TempDir     string // directory for staged uploads; empty = os.TempDir()
}

// TranscriptionConfig selects and configures the transcription backend.
// Backend is one of "whisper" (local model), "openai" (synchronous API)
// or "assemblyai" (submit-then-poll job API).
type TranscriptionConfig struct {
	Backend string

	// whisper
	WhisperBin   string
	WhisperModel string

	// openai
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIEndpoint string
	RequestTimeout time.Duration

	// assemblyai
	AssemblyAIAPIKey   string
	AssemblyAIEndpoint string
	PollInterval       time.Duration
	PollTimeout        time.Duration

	// StageTimeout bounds one whole transcription attempt regardless of backend.
	StageTimeout time.Duration
}

// SummarizationConfig configures transcript summarization.
type SummarizationConfig struct {
	Endpoint            string
	APIKey              string
	ChunkBudget         int // characters per summarization window
	MinMeaningfulLength int // windows shorter than this after trimming are skipped
	MaxSummaryLength    int // model output bound per chunk
	MinSummaryLength    int
	RequestTimeout      time.Duration
	StageTimeout        time.Duration
}

// WorkerConfig holds background pipeline worker settings.
type WorkerConfig struct {
	// AutoProcess enqueues a transcription job as soon as an upload lands,
	// so clients do not have to trigger the pipeline themselves.
	AutoProcess bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ServerWriteTimeout returns the HTTP write timeout. The transcribe and
// summarize endpoints run a whole pipeline stage before responding, so the
// configured value is raised to outlast the slowest stage; otherwise the
// stage would complete and persist while the response write gets cut off.
func (c *Config) ServerWriteTimeout() time.Duration {
	wt := time.Duration(c.Server.WriteTimeout) * time.Second
	floor := c.Transcription.StageTimeout
	if c.Summarization.StageTimeout > floor {
		floor = c.Summarization.StageTimeout
	}
	floor += 30 * time.Second
	if wt < floor {
		return floor
	}
	return wt
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "classcribe"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "classcribe-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Upload: UploadConfig{
			MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 50*1024*1024),
			TempDir:     getEnv("UPLOAD_TEMP_DIR", ""),
		},
		Transcription: TranscriptionConfig{
			Backend:            getEnv("TRANSCRIPTION_BACKEND", "openai"),
			WhisperBin:         getEnv("WHISPER_BIN", "whisper-cli"),
			WhisperModel:       getEnv("WHISPER_MODEL_PATH", "models/ggml-base.en.bin"),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:        getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
			OpenAIEndpoint:     getEnv("OPENAI_TRANSCRIBE_URL", "https://api.openai.com/v1/audio/transcriptions"),
			RequestTimeout:     getEnvDuration("TRANSCRIBE_REQUEST_TIMEOUT", 60*time.Second),
			AssemblyAIAPIKey:   getEnv("ASSEMBLYAI_API_KEY", ""),
			AssemblyAIEndpoint: getEnv("ASSEMBLYAI_URL", "https://api.assemblyai.com/v2"),
			PollInterval:       getEnvDuration("TRANSCRIBE_POLL_INTERVAL", 3*time.Second),
			PollTimeout:        getEnvDuration("TRANSCRIBE_POLL_TIMEOUT", 5*time.Minute),
			StageTimeout:       getEnvDuration("TRANSCRIBE_STAGE_TIMEOUT", 10*time.Minute),
		},
		Summarization: SummarizationConfig{
			Endpoint:            getEnv("SUMMARIZE_URL", "https://api-inference.huggingface.co/models/facebook/bart-large-cnn"),
			APIKey:              getEnv("SUMMARIZE_API_KEY", ""),
			ChunkBudget:         getEnvInt("SUMMARIZE_CHUNK_BUDGET", 1000),
			MinMeaningfulLength: getEnvInt("SUMMARIZE_MIN_CHUNK_LENGTH", 50),
			MaxSummaryLength:    getEnvInt("SUMMARIZE_MAX_LENGTH", 150),
			MinSummaryLength:    getEnvInt("SUMMARIZE_MIN_LENGTH", 30),
			RequestTimeout:      getEnvDuration("SUMMARIZE_REQUEST_TIMEOUT", 60*time.Second),
			StageTimeout:        getEnvDuration("SUMMARIZE_STAGE_TIMEOUT", 10*time.Minute),
		},
		Worker: WorkerConfig{
			AutoProcess: getEnvBool("AUTO_PROCESS", false),
		},
	}

	if err := cfg.Transcription.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c TranscriptionConfig) validate() error {
	switch c.Backend {
	case "whisper", "openai", "assemblyai":
		return nil
	default:
		return fmt.Errorf("unknown transcription backend %q", c.Backend)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
