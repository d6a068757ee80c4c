// Package config loads the pipeline configuration from defaults, an optional
// YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MarkerDir is the directory that holds the project configuration.
const MarkerDir = ".diary"

// FileName is the name of the config file within MarkerDir.
const FileName = "config.yaml"

// EnvConfigPath overrides config file discovery.
const EnvConfigPath = "DIARY_CONFIG"

// Default values for optional configuration fields
const (
	DefaultDownloadDir             = "~/diary/downloads"
	DefaultLogDir                  = "~/.diary/logs"
	DefaultModel                   = "gpt-4o-transcribe"
	DefaultDetectModel             = "gpt-4o-mini-transcribe"
	DefaultProbeSeconds            = 25
	DefaultTimeoutSeconds          = 300
	DefaultMaxRetries              = 3
	DefaultSearchQuery             = "in:inbox -label:Processed"
	DefaultProcessedLabel          = "Processed"
	DefaultMaxPerRun               = 50
	DefaultMaxAttachmentSize       = 10 * 1024 * 1024
	DefaultSearchFolder            = "root"
	DefaultWatchIntervalSeconds    = 30
	DefaultStabilizationIntervalMs = 2000
	DefaultStabilizationChecks     = 3
)

// Transcription providers.
const (
	ProviderOpenAI     = "openai"
	ProviderWhisperASR = "whisper_asr"
)

// Config is the full pipeline configuration.
type Config struct {
	DownloadDir   string              `yaml:"download_dir"`
	DatabaseURL   string              `yaml:"database_url"`
	LogDir        string              `yaml:"log_dir"`
	LogLevel      string              `yaml:"log_level"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Gmail         GmailConfig         `yaml:"gmail"`
	Drive         DriveConfig         `yaml:"drive"`
	Watch         WatchConfig         `yaml:"watch"`
}

// TranscriptionConfig configures the speech-to-text provider and language routing.
type TranscriptionConfig struct {
	// Provider is "openai" (default) or "whisper_asr" for a self-hosted webservice.
	Provider        string   `yaml:"provider"`
	ASRURL          string   `yaml:"asr_url"`
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	DetectModel     string   `yaml:"detect_model"`
	Temperature     *float64 `yaml:"temperature"`
	ProbeSeconds    int      `yaml:"probe_seconds"`
	NoProbe         bool     `yaml:"no_probe"`
	LanguageRouting bool     `yaml:"language_routing"`
	Language        string   `yaml:"language"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	MaxRetries      *int     `yaml:"max_retries"`
}

// IngestConfig configures the transcription/ingestion batch.
type IngestConfig struct {
	OneLevel     *bool    `yaml:"one_level"`
	WriteSidecar *bool    `yaml:"write_sidecar"`
	ArchiveDir   string   `yaml:"archive_dir"`
	Mood         string   `yaml:"mood"`
	Tags         []string `yaml:"tags"`
}

// GmailConfig configures the Gmail download phase.
type GmailConfig struct {
	Enabled           bool     `yaml:"enabled"`
	CredentialsFile   string   `yaml:"credentials_file"`
	TokenFile         string   `yaml:"token_file"`
	SearchQuery       string   `yaml:"search_query"`
	ProcessedLabel    string   `yaml:"processed_label"`
	MaxPerRun         int      `yaml:"max_per_run"`
	AllowedSenders    []string `yaml:"allowed_senders"`
	MaxAttachmentSize int64    `yaml:"max_attachment_size"`
	SaveBody          bool     `yaml:"save_body"`
	RecordMessages    *bool    `yaml:"record_messages"`
}

// DriveConfig configures the Drive download phase.
type DriveConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CredentialsFile string   `yaml:"credentials_file"`
	TokenFile       string   `yaml:"token_file"`
	SearchFolders   []string `yaml:"search_folders"`
	DeleteAudio     bool     `yaml:"delete_audio"`
	DeleteText      bool     `yaml:"delete_text"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	IntervalSeconds         int `yaml:"interval_seconds"`
	StabilizationIntervalMs int `yaml:"stabilization_interval_ms"`
	StabilizationChecks     int `yaml:"stabilization_checks"`
}

// Validation errors
var (
	ErrDownloadDirRequired = errors.New("download_dir is required")
	ErrDatabaseURLRequired = errors.New("database_url is required (set DATABASE_URL)")
	ErrAPIKeyRequired      = errors.New("transcription.api_key is required (set OPENAI_API_KEY)")
	ErrASRURLRequired      = errors.New("transcription.asr_url is required for the whisper_asr provider")
	ErrUnknownProvider     = errors.New("unknown transcription provider")
	ErrCredentialsRequired = errors.New("credentials_file is required")
	ErrConfigExists        = errors.New("config file already exists")
	ErrInvalidWatch        = errors.New("invalid watch settings")
)

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigPath is an explicit YAML path; empty means discover.
	ConfigPath string
	// EnvFile is a .env path; empty means ".env" in the working directory.
	EnvFile string
}

// Load builds the configuration: defaults, then the YAML file, then .env,
// then environment variables. A missing YAML file is not an error unless it
// was named explicitly.
func Load(opts Options) (*Config, error) {
	cfg := &Config{}

	path := opts.ConfigPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		if found, err := Find(); err == nil {
			path = found
		}
	}

	if path != "" {
		if err := cfg.loadFile(expandTilde(path)); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && opts.EnvFile != "" {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on top of the file values.
func (c *Config) applyEnv() {
	setString(&c.DownloadDir, "DOWNLOAD_DIR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogDir, "LOG_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Transcription.APIKey, "OPENAI_API_KEY")
	setString(&c.Transcription.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Transcription.ASRURL, "WHISPER_ASR_URL")
	setString(&c.Gmail.SearchQuery, "GMAIL_SEARCH_QUERY")

	if v := os.Getenv("SEARCH_FOLDERS"); v != "" {
		c.Drive.SearchFolders = splitList(v)
	}
	if v := os.Getenv("PROBE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transcription.ProbeSeconds = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyDefaults sets default values for optional fields that are empty or zero.
func (c *Config) ApplyDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}

	t := &c.Transcription
	if t.Provider == "" {
		t.Provider = ProviderOpenAI
	}
	if t.Model == "" {
		t.Model = DefaultModel
	}
	if t.DetectModel == "" {
		t.DetectModel = DefaultDetectModel
	}
	if t.Temperature == nil {
		zero := 0.0
		t.Temperature = &zero
	}
	if t.ProbeSeconds == 0 {
		t.ProbeSeconds = DefaultProbeSeconds
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if t.MaxRetries == nil {
		n := DefaultMaxRetries
		t.MaxRetries = &n
	}

	if c.Ingest.OneLevel == nil {
		v := true
		c.Ingest.OneLevel = &v
	}
	if c.Ingest.WriteSidecar == nil {
		v := true
		c.Ingest.WriteSidecar = &v
	}

	g := &c.Gmail
	if g.SearchQuery == "" {
		g.SearchQuery = DefaultSearchQuery
	}
	if g.ProcessedLabel == "" {
		g.ProcessedLabel = DefaultProcessedLabel
	}
	if g.MaxPerRun == 0 {
		g.MaxPerRun = DefaultMaxPerRun
	}
	if g.MaxAttachmentSize == 0 {
		g.MaxAttachmentSize = DefaultMaxAttachmentSize
	}
	if g.TokenFile == "" && g.CredentialsFile != "" {
		g.TokenFile = filepath.Join(filepath.Dir(g.CredentialsFile), "gmail_token.json")
	}

	d := &c.Drive
	if len(d.SearchFolders) == 0 {
		d.SearchFolders = []string{DefaultSearchFolder}
	}
	if d.TokenFile == "" && d.CredentialsFile != "" {
		d.TokenFile = filepath.Join(filepath.Dir(d.CredentialsFile), "drive_token.json")
	}

	w := &c.Watch
	if w.IntervalSeconds == 0 {
		w.IntervalSeconds = DefaultWatchIntervalSeconds
	}
	if w.StabilizationIntervalMs == 0 {
		w.StabilizationIntervalMs = DefaultStabilizationIntervalMs
	}
	if w.StabilizationChecks == 0 {
		w.StabilizationChecks = DefaultStabilizationChecks
	}
}

// Validate checks the fields every pipeline run needs.
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return ErrDownloadDirRequired
	}
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	return c.ValidateWatch()
}

// ValidateWatch checks the watch mode timings. Defaults only replace zero, so
// negative values from the file or environment end up here.
func (c *Config) ValidateWatch() error {
	w := c.Watch
	switch {
	case w.IntervalSeconds <= 0:
		return fmt.Errorf("%w: interval_seconds must be positive, got %d", ErrInvalidWatch, w.IntervalSeconds)
	case w.StabilizationIntervalMs <= 0:
		return fmt.Errorf("%w: stabilization_interval_ms must be positive, got %d", ErrInvalidWatch, w.StabilizationIntervalMs)
	case w.StabilizationChecks <= 0:
		return fmt.Errorf("%w: stabilization_checks must be positive, got %d", ErrInvalidWatch, w.StabilizationChecks)
	}
	return nil
}

// ValidateTranscription checks the fields the speech provider needs.
func (c *Config) ValidateTranscription() error {
	switch c.Transcription.Provider {
	case "", ProviderOpenAI:
		if c.Transcription.APIKey == "" {
			return ErrAPIKeyRequired
		}
	case ProviderWhisperASR:
		if c.Transcription.ASRURL == "" {
			return ErrASRURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Transcription.Provider)
	}
	return nil
}

// OneLevel reports whether discovery scans only immediate batch folders.
func (c *Config) OneLevel() bool {
	return c.Ingest.OneLevel == nil || *c.Ingest.OneLevel
}

// RecordGmail reports whether processed Gmail messages are written to the
// gml_* tables. It needs a database URL.
func (c *Config) RecordGmail() bool {
	return c.DatabaseURL != "" && (c.Gmail.RecordMessages == nil || *c.Gmail.RecordMessages)
}

// WriteSidecar reports whether transcript.json files are written next to audio.
func (c *Config) WriteSidecar() bool {
	return c.Ingest.WriteSidecar == nil || *c.Ingest.WriteSidecar
}

func (c *Config) expandPaths() {
	c.DownloadDir = expandTilde(c.DownloadDir)
	c.LogDir = expandTilde(c.LogDir)
	c.Ingest.ArchiveDir = expandTilde(c.Ingest.ArchiveDir)
	c.Gmail.CredentialsFile = expandTilde(c.Gmail.CredentialsFile)
	c.Gmail.TokenFile = expandTilde(c.Gmail.TokenFile)
	c.Drive.CredentialsFile = expandTilde(c.Drive.CredentialsFile)
	c.Drive.TokenFile = expandTilde(c.Drive.TokenFile)
}

// expandTilde expands ~ at the beginning of a path to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
