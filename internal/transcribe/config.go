package transcribe

import (
	"fmt"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/transcribe/client"
)

// Options are the per-call transcription settings.
type Options struct {
	Model           string
	DetectModel     string
	Language        string
	ProbeSeconds    int
	UseProbe        bool
	LanguageRouting bool
	Temperature     float64
	DryRun          bool
}

// OptionsFromConfig builds call options from the loaded configuration.
func OptionsFromConfig(cfg config.TranscriptionConfig) Options {
	opts := Options{
		Model:           cfg.Model,
		DetectModel:     cfg.DetectModel,
		Language:        cfg.Language,
		ProbeSeconds:    cfg.ProbeSeconds,
		UseProbe:        !cfg.NoProbe,
		LanguageRouting: cfg.LanguageRouting,
	}
	if cfg.Temperature != nil {
		opts.Temperature = *cfg.Temperature
	}
	opts.ApplyDefaults()
	return opts
}

// ApplyDefaults fills empty models and clamps the probe length.
func (o *Options) ApplyDefaults() {
	if o.Model == "" {
		o.Model = config.DefaultModel
	}
	if o.DetectModel == "" {
		o.DetectModel = config.DefaultDetectModel
	}
	if o.ProbeSeconds == 0 {
		o.ProbeSeconds = config.DefaultProbeSeconds
	}
}

// NewProvider builds the configured speech provider wrapped in retries.
func NewProvider(cfg config.TranscriptionConfig, logger logging.Logger) (client.Provider, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = client.DefaultTimeout
	}

	var base client.Provider
	switch cfg.Provider {
	case "", config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, config.ErrAPIKeyRequired
		}
		opts := []client.OpenAIOption{client.WithTimeout(timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, client.WithBaseURL(cfg.BaseURL))
		}
		base = client.NewOpenAIProvider(cfg.APIKey, opts...)
	case config.ProviderWhisperASR:
		if cfg.ASRURL == "" {
			return nil, config.ErrASRURLRequired
		}
		base = client.NewWhisperASRProvider(cfg.ASRURL, client.WithASRTimeout(timeout))
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}

	retries := config.DefaultMaxRetries
	if cfg.MaxRetries != nil {
		retries = *cfg.MaxRetries
	}
	if retries <= 0 {
		return base, nil
	}
	return client.NewRetryProvider(base,
		client.WithRetryCount(retries),
		client.WithLogger(logger.WithComponent("client")),
	), nil
}
