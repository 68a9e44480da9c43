package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Driver           string // "sqlite" | "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPAddr        string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// OCRConfig holds recognition-engine configuration.
type OCRConfig struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // cap on OCRed PDF pages, default 4
	FastMaxSide   int // fast-tier downscale bound, default 1600

	BreakerEnabled bool
}

// PipelineConfig holds the knobs the deployment owns for the processing core.
type PipelineConfig struct {
	Workers   int
	QueueSize int
	// ProcessTimeout is a backstop, not a cancellation path: once a job is
	// processing it runs to a terminal state, so this must exceed the
	// slowest legitimate episode (a multi-page scanned PDF on the full
	// tier). Clients poll for up to this long.
	ProcessTimeout      time.Duration
	RetryEnabled        bool
	ConfidenceThreshold float64 // 0..100, reused for retry and needs_review
	DiagnosticsEnabled  bool
	DiagnosticsDir      string
	// RequeueStaleAfter is the startup-requeue horizon: a processing job
	// updated more recently than this is a live episode on another replica
	// and is not reset.
	RequeueStaleAfter time.Duration
}

// StorageConfig holds blob-store configuration. S3 is used when Bucket is set.
type StorageConfig struct {
	UploadsDir  string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// QueueConfig selects the dispatch queue. Redis is used when Addr is set,
// which lets intake and workers run as separate processes.
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:ocreceipt.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		OCR: OCRConfig{
			Tesseract:      getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:       getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TesseractLang:  getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
			DPI:            getEnvAsInt("OCR_DPI", 300),
			MaxPages:       getEnvAsInt("OCR_MAX_PDF_PAGES", 4),
			FastMaxSide:    getEnvAsInt("OCR_FAST_MAX_SIDE", 1600),
			BreakerEnabled: getEnvAsBool("OCR_BREAKER_ENABLED", true),
		},
		Pipeline: PipelineConfig{
			Workers:             getEnvAsInt("WORKERS", 4),
			QueueSize:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout:      getEnvAsDuration("PROCESS_TIMEOUT", 15*time.Minute),
			RetryEnabled:        getEnvAsBool("RETRY_ENABLED", true),
			ConfidenceThreshold: getEnvAsFloat64("CONFIDENCE_THRESHOLD", 60),
			DiagnosticsEnabled:  getEnvAsBool("DIAGNOSTICS_ENABLED", false),
			DiagnosticsDir:      getEnv("DIAGNOSTICS_DIR", "./diagnostics"),
			RequeueStaleAfter:   getEnvAsDuration("REQUEUE_STALE_AFTER", 15*time.Minute),
		},
		Storage: StorageConfig{
			UploadsDir:  getEnv("UPLOADS_DIR", "./uploads"),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			S3Region:    getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("S3_ENDPOINT", ""),
			S3PathStyle: getEnvAsBool("S3_PATH_STYLE", false),
		},
		Queue: QueueConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			RedisKey:      getEnv("REDIS_QUEUE_KEY", "ocreceipt:jobs"),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be sqlite or postgres", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 100 {
		return NewAppError("CONFIG_ERROR", "CONFIDENCE_THRESHOLD must be within 0..100", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
