package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 300 * time.Second

// OpenAIProvider implements Provider against the OpenAI audio transcriptions endpoint.
type OpenAIProvider struct {
	client  openai.Client
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// OpenAIOption configures the OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL points the provider at a different API host.
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.baseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.http = c
	}
}

// NewOpenAIProvider creates a provider authenticated with apiKey. The SDK's own
// retries are disabled; wrap the provider in a RetryProvider instead.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(p.timeout),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.http != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(p.http))
	}
	p.client = openai.NewClient(reqOpts...)
	return p
}

// Transcribe uploads the file and normalizes whatever body comes back.
func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (*diary.Transcription, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	params := openai.AudioTranscriptionNewParams{
		File:           file,
		Model:          openai.AudioModel(req.Model),
		Temperature:    openai.Float(req.Temperature),
		ResponseFormat: openai.AudioResponseFormat(format),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}

	// The raw response is taken so JSON, JSON-string and plain-text bodies all
	// reach the normalizer untouched.
	var resp *http.Response
	if _, err := p.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&resp)); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if format == FormatText {
		return diary.PlainTextResponse(body), nil
	}
	t, err := diary.NormalizeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return t, nil
}
