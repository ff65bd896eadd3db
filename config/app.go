package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
	appErr    error
)

type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	OCR       OCRConfig       `yaml:"ocr"`
	Tagging   TaggingConfig   `yaml:"tagging"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Storage   StorageConfig   `yaml:"storage"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
	MaxUploadBytes int64   `yaml:"maxUploadBytes"`
}

// ProviderConfig selects the generative text backend.
type ProviderConfig struct {
	Kind        string        `yaml:"kind"` // openai | ollama
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"-"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	SiteURL     string        `yaml:"siteUrl"`
	AppName     string        `yaml:"appName"`
}

type PipelineConfig struct {
	PagesToExtract     int           `yaml:"pagesToExtract"`
	TagsRequested      int           `yaml:"tagsRequested"`
	ExclusionWords     []string      `yaml:"exclusionWords"`
	InterDocumentDelay time.Duration `yaml:"interDocumentDelay"`
}

type OCRConfig struct {
	TessdataDir       string        `yaml:"tessdataDir"`
	RendererPath      string        `yaml:"rendererPath"`
	RenderDPI         int           `yaml:"renderDpi"`
	FastConcurrency   int           `yaml:"fastConcurrency"`
	AccurateBackend   string        `yaml:"accurateBackend"` // subprocess | textract | none
	WorkerBinary      string        `yaml:"workerBinary"`
	WorkerTimeout     time.Duration `yaml:"workerTimeout"`
	WorkerMemoryMB    int           `yaml:"workerMemoryMb"`
	MaxImageDimension int           `yaml:"maxImageDimension"`
}

// TaggingConfig overrides the built-in tagging vocabulary when non-empty.
type TaggingConfig struct {
	NoiseWords     []string      `yaml:"noiseWords"`
	GenericTerms   []string      `yaml:"genericTerms"`
	SignalKeywords []string      `yaml:"signalKeywords"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	BaseBackoff    time.Duration `yaml:"baseBackoff"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	URL string `yaml:"-"`
}

type StorageConfig struct {
	Type string `yaml:"type"` // s3 | minio | none
}

type RetrieverConfig struct {
	LocalBaseDir string        `yaml:"localBaseDir"`
	MaxBytes     int64         `yaml:"maxBytes"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	CancelPoll   time.Duration `yaml:"cancelPoll"`
	ExportFormat string        `yaml:"exportFormat"` // json | xlsx
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			MaxUploadBytes: 50 * 1024 * 1024,
		},
		Provider: ProviderConfig{
			Kind:        "openai",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			Timeout:     60 * time.Second,
			MaxTokens:   800,
			Temperature: 0.3,
			AppName:     "Meta Data Tag Generator",
		},
		Pipeline: PipelineConfig{
			PagesToExtract:     3,
			TagsRequested:      8,
			InterDocumentDelay: 500 * time.Millisecond,
		},
		OCR: OCRConfig{
			TessdataDir:       "/usr/share/tesseract-ocr/5/tessdata",
			RendererPath:      "pdftoppm",
			RenderDPI:         200,
			FastConcurrency:   2,
			AccurateBackend:   "subprocess",
			WorkerBinary:      "ocrworker",
			WorkerTimeout:     120 * time.Second,
			WorkerMemoryMB:    2048,
			MaxImageDimension: 1500,
		},
		Tagging: TaggingConfig{
			BaseBackoff: time.Second,
			MaxBackoff:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Type: "none",
		},
		Retriever: RetrieverConfig{
			MaxBytes:    50 * 1024 * 1024,
			HTTPTimeout: 60 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:  4,
			CancelPoll:   time.Second,
			ExportFormat: "json",
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file,
// then environment variables.
func Load(path string) (*AppConfig, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetAppConfig loads .env and CONFIG_FILE once per process.
func GetAppConfig() (*AppConfig, error) {
	appOnce.Do(func() {
		loadEnv()
		appConfig, appErr = Load(os.Getenv("CONFIG_FILE"))
	})
	return appConfig, appErr
}

func (c *AppConfig) Validate() error {
	if c.Pipeline.TagsRequested < 3 || c.Pipeline.TagsRequested > 15 {
		return fmt.Errorf("tagsRequested must be between 3 and 15, got %d", c.Pipeline.TagsRequested)
	}
	if c.Pipeline.PagesToExtract < 1 {
		return fmt.Errorf("pagesToExtract must be positive, got %d", c.Pipeline.PagesToExtract)
	}
	switch c.Provider.Kind {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported provider kind: %s", c.Provider.Kind)
	}
	switch c.OCR.AccurateBackend {
	case "subprocess", "textract", "none":
	default:
		return fmt.Errorf("unsupported accurate OCR backend: %s", c.OCR.AccurateBackend)
	}
	if c.OCR.WorkerTimeout <= 0 {
		return fmt.Errorf("ocr worker timeout must be positive")
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", cfg.Server.RateLimitRPS)
	cfg.Server.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.Server.RateLimitBurst)

	cfg.Provider.Kind = getEnv("LLM_PROVIDER", cfg.Provider.Kind)
	cfg.Provider.BaseURL = getEnv("LLM_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = getEnv("LLM_API_KEY", getEnv("OPENROUTER_API_KEY", cfg.Provider.APIKey))
	cfg.Provider.Model = getEnv("LLM_MODEL", cfg.Provider.Model)
	cfg.Provider.Timeout = getEnvDuration("LLM_TIMEOUT", cfg.Provider.Timeout)
	cfg.Provider.MaxTokens = getEnvInt("LLM_MAX_TOKENS", cfg.Provider.MaxTokens)
	cfg.Provider.Temperature = getEnvFloat("LLM_TEMPERATURE", cfg.Provider.Temperature)

	cfg.Pipeline.PagesToExtract = getEnvInt("PAGES_TO_EXTRACT", cfg.Pipeline.PagesToExtract)
	cfg.Pipeline.TagsRequested = getEnvInt("TAGS_REQUESTED", cfg.Pipeline.TagsRequested)
	cfg.Pipeline.ExclusionWords = getEnvList("EXCLUSION_WORDS", cfg.Pipeline.ExclusionWords)
	cfg.Pipeline.InterDocumentDelay = getEnvDuration("INTER_DOCUMENT_DELAY", cfg.Pipeline.InterDocumentDelay)

	cfg.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", cfg.OCR.TessdataDir)
	cfg.OCR.RendererPath = getEnv("PDF_RENDERER", cfg.OCR.RendererPath)
	cfg.OCR.AccurateBackend = getEnv("ACCURATE_OCR_BACKEND", cfg.OCR.AccurateBackend)
	cfg.OCR.WorkerBinary = getEnv("OCR_WORKER_BINARY", cfg.OCR.WorkerBinary)
	cfg.OCR.WorkerTimeout = getEnvDuration("OCR_WORKER_TIMEOUT", cfg.OCR.WorkerTimeout)
	cfg.OCR.WorkerMemoryMB = getEnvInt("OCR_WORKER_MEMORY_MB", cfg.OCR.WorkerMemoryMB)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Postgres.URL = getEnv("DATABASE_URL", cfg.Postgres.URL)
	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)

	cfg.Retriever.LocalBaseDir = getEnv("LOCAL_FILES_DIR", cfg.Retriever.LocalBaseDir)
	cfg.Retriever.HTTPTimeout = getEnvDuration("FETCH_TIMEOUT", cfg.Retriever.HTTPTimeout)

	cfg.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.ExportFormat = getEnv("EXPORT_FORMAT", cfg.Worker.ExportFormat)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Encoding = getEnv("LOG_ENCODING", cfg.Log.Encoding)
}
