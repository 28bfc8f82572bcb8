package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Environment string
	Level       string
	Pretty      bool
	File        string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Enabled         bool // RUN_WORKER; false serves only the HTTP API
	Concurrency     int
	PageConcurrency int // 0 = one goroutine per page
	ConsumerPrefix  string
}

// TierConfig is one text-extraction backend and its acceptance threshold.
type TierConfig struct {
	Backend  string  `yaml:"backend"`
	MaxRatio float64 `yaml:"max_ratio"`
}

// ExtractionConfig controls the tiered text extractor.
type ExtractionConfig struct {
	Tiers        []TierConfig `yaml:"tiers"`
	ScriptRanges string       `yaml:"script_ranges"` // e.g. "0C00-0C7F"
	PdftotextBin string       `yaml:"pdftotext_bin"`
	MutoolBin    string       `yaml:"mutool_bin"`
}

// StrategyConfig is the coarse digital-vs-visual gate.
type StrategyConfig struct {
	MinTextLength int     `yaml:"min_text_length"`
	MaxRatio      float64 `yaml:"max_ratio"`
}

// SegmentConfig parameterises heuristic article segmentation.
type SegmentConfig struct {
	HeadlineHeightFactor float64 `yaml:"headline_height_factor"`
	MinHeadlineLength    int     `yaml:"min_headline_length"`
	MaxHeadlineLength    int     `yaml:"max_headline_length"`
	MinBodyLength        int     `yaml:"min_body_length"`
}

// RenderConfig controls page rasterisation for the visual path.
type RenderConfig struct {
	DPI          float64
	MaxDimension int
	JPEGQuality  int
	Color        string // "rgb" or "gray"
}

// ModelConfig points at an OpenAI-compatible chat completion endpoint.
type ModelConfig struct {
	BaseURL       string
	APIKey        string
	TextModel     string
	VisionModel   string
	ClassifyModel string
	Focus         string
	// Reconstruction is "model", "layout" (OCR lines grouped by the text
	// model) or "heuristic"; "auto" picks model when an API key is set.
	Reconstruction string
	RequestTimeout time.Duration
}

// OCRConfig configures the tesseract binary used by the heuristic visual path.
type OCRConfig struct {
	Tesseract   string
	Lang        string
	TessdataDir string
}

// ClusterConfig parameterises TF-IDF + DBSCAN topic clustering.
type ClusterConfig struct {
	Eps         float64 `yaml:"eps"`
	MinSamples  int     `yaml:"min_samples"`
	MaxFeatures int     `yaml:"max_features"`
}

// StorageConfig holds document source settings.
type StorageConfig struct {
	AWSRegion       string
	AWSAccessKey    string
	AWSSecretKey    string
	DownloadTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging    LoggingConfig
	Axiom      AxiomConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Extraction ExtractionConfig
	Strategy   StrategyConfig
	Segment    SegmentConfig
	Render     RenderConfig
	Model      ModelConfig
	OCR        OCRConfig
	Cluster    ClusterConfig
	Storage    StorageConfig
	HTTPPort   string

	// File is the optional YAML overlay applied with ApplyFile.
	File string
}

// FromEnv loads configuration from environment with sensible defaults.
// A .env file in the working directory is honoured if present. CONFIG_FILE
// names a YAML overlay for the tuning thresholds; it is not applied here.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "")),
		Level:       getEnv("LOG_LEVEL", "info"),
		Pretty:      parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:        getEnv("LOG_FILE", "logs/newsdigest.log"),
		MaxSizeMB:   parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups:  parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays:  parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:    parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_newsdigest",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:newsdigest:documents"),
		Group:        getEnv("QUEUE_GROUP", "workers:newsdigest"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
	}

	cfg.Worker = WorkerConfig{
		Enabled:         parseBool(getEnv("RUN_WORKER", "true")),
		Concurrency:     parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		PageConcurrency: parseInt(getEnv("PAGE_CONCURRENCY", "0"), 0),
		ConsumerPrefix:  getEnv("WORKER_CONSUMER_PREFIX", hostname()),
	}

	cfg.Extraction = ExtractionConfig{
		Tiers:        parseTiers(getEnv("EXTRACTION_TIERS", "fitz:0.15,layout:0.10,pdftotext:0.10")),
		ScriptRanges: getEnv("TARGET_SCRIPT_RANGES", "0C00-0C7F"),
		PdftotextBin: getEnv("PDFTOTEXT_BIN", "pdftotext"),
		MutoolBin:    getEnv("MUTOOL_BIN", "mutool"),
	}

	cfg.Strategy = StrategyConfig{
		MinTextLength: parseInt(getEnv("DIGITAL_MIN_TEXT_LENGTH", "100"), 100),
		MaxRatio:      parseFloat(getEnv("DIGITAL_MAX_RATIO", "0.20"), 0.20),
	}

	cfg.Segment = SegmentConfig{
		HeadlineHeightFactor: parseFloat(getEnv("HEADLINE_HEIGHT_FACTOR", "1.5"), 1.5),
		MinHeadlineLength:    parseInt(getEnv("HEADLINE_MIN_LENGTH", "5"), 5),
		MaxHeadlineLength:    parseInt(getEnv("HEADLINE_MAX_LENGTH", "150"), 150),
		MinBodyLength:        parseInt(getEnv("HEURISTIC_MIN_BODY_LENGTH", "50"), 50),
	}

	cfg.Render = RenderConfig{
		DPI:          parseFloat(getEnv("RENDER_DPI", "150"), 150),
		MaxDimension: parseInt(getEnv("RENDER_MAX_DIMENSION", "2000"), 2000),
		JPEGQuality:  parseInt(getEnv("RENDER_JPEG_QUALITY", "85"), 85),
		Color:        strings.ToLower(getEnv("RENDER_COLOR", "rgb")),
	}

	cfg.Model = ModelConfig{
		BaseURL:        getEnv("MODEL_BASE_URL", ""),
		APIKey:         getEnv("MODEL_API_KEY", os.Getenv("OPENAI_API_KEY")),
		TextModel:      getEnv("MODEL_TEXT", "gpt-4.1-mini"),
		VisionModel:    getEnv("MODEL_VISION", "gpt-4.1"),
		ClassifyModel:  getEnv("MODEL_CLASSIFY", "gpt-4.1-mini"),
		Focus:          getEnv("EDITORIAL_FOCUS", "Andhra Pradesh Government"),
		Reconstruction: strings.ToLower(getEnv("RECONSTRUCTION_MODE", "auto")),
		RequestTimeout: parseDuration(getEnv("MODEL_REQUEST_TIMEOUT", "90s"), 90*time.Second),
	}

	cfg.OCR = OCRConfig{
		Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
		Lang:        getEnv("TESSERACT_LANG", "tel+eng"),
		TessdataDir: getEnv("TESSDATA_DIR", ""),
	}

	cfg.Cluster = ClusterConfig{
		Eps:         parseFloat(getEnv("CLUSTER_EPS", "0.5"), 0.5),
		MinSamples:  parseInt(getEnv("CLUSTER_MIN_SAMPLES", "2"), 2),
		MaxFeatures: parseInt(getEnv("CLUSTER_MAX_FEATURES", "1000"), 1000),
	}

	cfg.Storage = StorageConfig{
		AWSRegion:       getEnv("AWS_REGION", ""),
		AWSAccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DownloadTimeout: parseDuration(getEnv("DOWNLOAD_TIMEOUT", "2m"), 2*time.Minute),
	}

	cfg.HTTPPort = getEnv("PORT", "8080")
	cfg.File = os.Getenv("CONFIG_FILE")
	return cfg
}

// parseTiers reads "backend:ratio,backend:ratio". Entries without a ratio
// get 0.10.
func parseTiers(s string) []TierConfig {
	var tiers []TierConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, ratio, found := strings.Cut(part, ":")
		t := TierConfig{Backend: strings.ToLower(strings.TrimSpace(name)), MaxRatio: 0.10}
		if found {
			t.MaxRatio = parseFloat(strings.TrimSpace(ratio), 0.10)
		}
		tiers = append(tiers, t)
	}
	return tiers
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

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
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

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker"
	}
	return h
}
