package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// StatusError is a non-200 response from a self-hosted ASR service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Body)
}

// WhisperASRProvider implements Provider for a self-hosted
// openai-whisper-asr-webservice (POST /asr with an audio_file form field).
// The model is chosen by the server; Request.Model is ignored.
type WhisperASRProvider struct {
	baseURL    string
	httpClient *http.Client
}

// WhisperASROption configures the WhisperASRProvider.
type WhisperASROption func(*WhisperASRProvider)

// WithASRTimeout sets the HTTP request timeout.
func WithASRTimeout(d time.Duration) WhisperASROption {
	return func(p *WhisperASRProvider) {
		p.httpClient.Timeout = d
	}
}

// WithASRHTTPClient sets a custom HTTP client.
func WithASRHTTPClient(c *http.Client) WhisperASROption {
	return func(p *WhisperASRProvider) {
		p.httpClient = c
	}
}

// NewWhisperASRProvider creates a provider for the webservice at baseURL.
func NewWhisperASRProvider(baseURL string, opts ...WhisperASROption) *WhisperASRProvider {
	p := &WhisperASRProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transcribe uploads the audio file and normalizes the response.
func (p *WhisperASRProvider) Transcribe(ctx context.Context, req Request) (*diary.Transcription, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio_file", filepath.Base(req.Path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL, err := p.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if req.Format == FormatText {
		return diary.PlainTextResponse(body), nil
	}
	return diary.NormalizeResponse(body)
}

func (p *WhisperASRProvider) buildURL(req Request) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/asr"
	}

	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	q := u.Query()
	q.Set("output", string(format))
	if req.Language != "" {
		q.Set("language", req.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
