package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Matchcast environment variables.
const EnvPrefix = "MATCHCAST_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	DBPath     string `yaml:"db_path"`
	VideosDir  string `yaml:"videos_dir"`
	OutputDir  string `yaml:"output_dir"`
	DataDir    string `yaml:"data_dir"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	SegmentSeconds       float64 `yaml:"segment_seconds"`
	RequestsPerMinute    int     `yaml:"requests_per_minute"`
	SafetyBuffer         string  `yaml:"safety_buffer"`
	MaxSynthesisParallel int     `yaml:"max_synthesis_parallel"`
	ChunkTolerance       float64 `yaml:"chunk_tolerance"`

	WordsPerSecond float64 `yaml:"words_per_second"`
	MinGap         float64 `yaml:"min_gap"`
	MinDuration    float64 `yaml:"min_duration"`
	MaxDuration    float64 `yaml:"max_duration"`

	DetectionModel string            `yaml:"detection_model"`
	NarrationModel string            `yaml:"narration_model"`
	NarrationMode  string            `yaml:"narration_mode"`
	SpeechVoices   map[string]string `yaml:"speech_voices"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets come from env vars only and are never serialized to YAML.
	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:           "127.0.0.1:8090",
		BaseURL:              "http://127.0.0.1:8090",
		DBPath:               "data/matchcast.db",
		VideosDir:            "data/videos",
		OutputDir:            "data/output",
		DataDir:              "data",
		SegmentSeconds:       30,
		RequestsPerMinute:    10,
		SafetyBuffer:         "500ms",
		MaxSynthesisParallel: 5,
		ChunkTolerance:       0.25,
		WordsPerSecond:       2.5,
		MinGap:               0.5,
		MinDuration:          1.5,
		MaxDuration:          20,
		DetectionModel:       "gemini-2.0-flash",
		NarrationModel:       "gemini/gemini-2.0-flash",
		NarrationMode:        "batch",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedSafetyBuffer returns SafetyBuffer as a time.Duration,
// falling back to 500ms if the value is invalid.
func (c *Config) ParsedSafetyBuffer() time.Duration {
	d, err := time.ParseDuration(c.SafetyBuffer)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "VIDEOS_DIR"); v != "" {
		cfg.VideosDir = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv(EnvPrefix + "FFPROBE_PATH"); v != "" {
		cfg.FFprobePath = v
	}
	if v := os.Getenv(EnvPrefix + "SEGMENT_SECONDS"); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && secs > 0 {
			cfg.SegmentSeconds = secs
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_MINUTE"); v != "" {
		if rpm, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rpm > 0 {
			cfg.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv(EnvPrefix + "SAFETY_BUFFER"); v != "" {
		cfg.SafetyBuffer = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_SYNTHESIS_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MaxSynthesisParallel = n
		}
	}
	if v := os.Getenv(EnvPrefix + "DETECTION_MODEL"); v != "" {
		cfg.DetectionModel = v
	}
	if v := os.Getenv(EnvPrefix + "NARRATION_MODEL"); v != "" {
		cfg.NarrationModel = v
	}
	if v := os.Getenv(EnvPrefix + "NARRATION_MODE"); v != "" {
		cfg.NarrationMode = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "Gemini API key not configured, event detection is disabled. Set "+EnvPrefix+"GEMINI_API_KEY.")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured, speech synthesis is disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.SafetyBuffer); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid safety_buffer %q, using default 500ms.", cfg.SafetyBuffer))
	}
	if cfg.NarrationMode != "batch" && cfg.NarrationMode != "turns" {
		warnings = append(warnings, fmt.Sprintf("Unknown narration_mode %q, using batch.", cfg.NarrationMode))
		cfg.NarrationMode = "batch"
	}
	if _, _, err := parseProviderModel(cfg.NarrationModel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid narration_model %q, expected provider/model_name.", cfg.NarrationModel))
	}

	return warnings
}

func parseProviderModel(model string) (string, string, error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q", model)
	}
	return parts[0], parts[1], nil
}
