package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig defines HTTP server behavior.
type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

// CacheConfig defines the on-disk job cache layout and retention policy.
// Transcript records and the dedup index live as files in Dir, next to the
// per-job directories.
type CacheConfig struct {
	Dir              string
	RetentionDays    int
	ForceCleanupDays int
	CleanupInterval  time.Duration
	CleanupDelay     time.Duration
	MaxUploadBytes   int64
}

// OpenAIConfig defines model client connectivity.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// StageModels selects the model and reasoning effort per pipeline stage.
type StageModels struct {
	QAModel        string
	QAEffort       string
	OverviewModel  string
	OverviewEffort string
	JudgeModel     string
	JudgeEffort    string
}

// PromptsConfig selects prompt versions and the prompt file location.
type PromptsConfig struct {
	Dir             string
	QAVersion       string
	OverviewVersion string
	JudgeVersion    string
}

// WorkflowConfig defines pipeline timing and throttling.
type WorkflowConfig struct {
	FanOutDeadline     time.Duration
	RateLimitThreshold int
	RateLimitBackoff   time.Duration
}

// ArchiveConfig defines optional S3 artifact archival.
type ArchiveConfig struct {
	Bucket string
	Region string
	Prefix string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	Cache    CacheConfig
	OpenAI   OpenAIConfig
	Models   StageModels
	Prompts  PromptsConfig
	Workflow WorkflowConfig
	Archive  ArchiveConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/summarizer.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_summarizer",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:        parseInt(getEnv("PORT", "8000"), 8000),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
	}

	cfg.Cache = CacheConfig{
		Dir:              getEnv("CACHE_DIR", "cache"),
		RetentionDays:    parseInt(getEnv("RETENTION_DAYS", "2"), 2),
		ForceCleanupDays: parseInt(getEnv("FORCE_CLEANUP_DAYS", "7"), 7),
		CleanupInterval:  parseDuration(getEnv("CLEANUP_INTERVAL", "6h"), 6*time.Hour),
		CleanupDelay:     parseDuration(getEnv("CLEANUP_STARTUP_DELAY", "10s"), 10*time.Second),
		MaxUploadBytes:   int64(parseInt(getEnv("MAX_UPLOAD_MB", "10"), 10)) * 1024 * 1024,
	}

	cfg.OpenAI = OpenAIConfig{
		APIKey:         getEnv("OPENAI_API_KEY", ""),
		BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		RequestTimeout: parseDuration(getEnv("OPENAI_TIMEOUT", "240s"), 240*time.Second),
	}

	cfg.Models = StageModels{
		QAModel:        getEnv("QA_MODEL", "gpt-5"),
		QAEffort:       getEnv("QA_EFFORT", "medium"),
		OverviewModel:  getEnv("OVERVIEW_MODEL", "gpt-5"),
		OverviewEffort: getEnv("OVERVIEW_EFFORT", "low"),
		JudgeModel:     getEnv("JUDGE_MODEL", "gpt-5"),
		JudgeEffort:    getEnv("JUDGE_EFFORT", "low"),
	}

	cfg.Prompts = PromptsConfig{
		Dir:             getEnv("PROMPTS_DIR", "prompts"),
		QAVersion:       getEnv("QA_PROMPT_VERSION", "version_1"),
		OverviewVersion: getEnv("OVERVIEW_PROMPT_VERSION", "version_1"),
		JudgeVersion:    getEnv("JUDGE_PROMPT_VERSION", "version_2"),
	}

	cfg.Workflow = WorkflowConfig{
		FanOutDeadline:     parseDuration(getEnv("FAN_OUT_DEADLINE", "5m"), 5*time.Minute),
		RateLimitThreshold: parseInt(getEnv("RATE_LIMIT_THRESHOLD", "40000"), 40000),
		RateLimitBackoff:   parseDuration(getEnv("RATE_LIMIT_BACKOFF", "5s"), 5*time.Second),
	}

	cfg.Archive = ArchiveConfig{
		Bucket: getEnv("ARCHIVE_S3_BUCKET", ""),
		Region: getEnv("ARCHIVE_S3_REGION", getEnv("AWS_REGION", "us-east-1")),
		Prefix: getEnv("ARCHIVE_S3_PREFIX", "jobs"),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
