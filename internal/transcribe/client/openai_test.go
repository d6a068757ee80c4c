package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
)

func createTestAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

type capturedForm struct {
	path           string
	model          string
	language       string
	responseFormat string
	temperature    string
	filename       string
}

func newTestServer(t *testing.T, status int, contentType, body string, captured *capturedForm) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		if captured != nil {
			captured.path = r.URL.Path
			captured.model = r.FormValue("model")
			captured.language = r.FormValue("language")
			captured.responseFormat = r.FormValue("response_format")
			captured.temperature = r.FormValue("temperature")
			if _, header, err := r.FormFile("file"); err == nil {
				captured.filename = header.Filename
			}
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIProvider_JSONResponse(t *testing.T) {
	var form capturedForm
	server := newTestServer(t, http.StatusOK, "application/json",
		`{"text":"bom dia","usage":{"type":"tokens","input_tokens":5,"output_tokens":2,"total_tokens":7}}`, &form)

	p := NewOpenAIProvider("sk-test", WithBaseURL(server.URL+"/"), WithTimeout(5*time.Second))
	result, err := p.Transcribe(context.Background(), Request{
		Path:     createTestAudioFile(t),
		Model:    "gpt-4o-transcribe",
		Language: "pt",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if result.Text != "bom dia" {
		t.Errorf("Text = %q, want %q", result.Text, "bom dia")
	}
	if result.Usage == nil || result.Usage.TotalTokens == nil || *result.Usage.TotalTokens != 7 {
		t.Errorf("Usage = %+v, want total_tokens 7", result.Usage)
	}
	if form.path != "/audio/transcriptions" {
		t.Errorf("path = %q, want /audio/transcriptions", form.path)
	}
	if form.model != "gpt-4o-transcribe" {
		t.Errorf("model = %q", form.model)
	}
	if form.language != "pt" {
		t.Errorf("language = %q, want pt", form.language)
	}
	if form.responseFormat != "json" {
		t.Errorf("response_format = %q, want json", form.responseFormat)
	}
	if form.filename != "test.wav" {
		t.Errorf("filename = %q, want test.wav", form.filename)
	}
}

func TestOpenAIProvider_TextResponseOmitsLanguage(t *testing.T) {
	var form capturedForm
	server := newTestServer(t, http.StatusOK, "text/plain", "obrigado pela atenção\n", &form)

	p := NewOpenAIProvider("sk-test", WithBaseURL(server.URL+"/"))
	result, err := p.Transcribe(context.Background(), Request{
		Path:   createTestAudioFile(t),
		Model:  "gpt-4o-mini-transcribe",
		Format: FormatText,
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if result.Text != "obrigado pela atenção" {
		t.Errorf("Text = %q", result.Text)
	}
	if form.language != "" {
		t.Errorf("language = %q, want omitted", form.language)
	}
	if form.responseFormat != "text" {
		t.Errorf("response_format = %q, want text", form.responseFormat)
	}
	if form.temperature != "0" {
		t.Errorf("temperature = %q, want 0", form.temperature)
	}
}

func TestOpenAIProvider_TextResponseStartingWithBrace(t *testing.T) {
	server := newTestServer(t, http.StatusOK, "text/plain", "{música} olá, obrigado pela atenção\n", nil)

	p := NewOpenAIProvider("sk-test", WithBaseURL(server.URL+"/"))
	result, err := p.Transcribe(context.Background(), Request{
		Path:   createTestAudioFile(t),
		Model:  "gpt-4o-mini-transcribe",
		Format: FormatText,
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "{música} olá, obrigado pela atenção" {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestOpenAIProvider_ClientError(t *testing.T) {
	server := newTestServer(t, http.StatusBadRequest, "application/json",
		`{"error":{"message":"bad audio","type":"invalid_request_error"}}`, nil)

	p := NewOpenAIProvider("sk-test", WithBaseURL(server.URL+"/"))
	_, err := p.Transcribe(context.Background(), Request{Path: createTestAudioFile(t), Model: "m"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *openai.Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if isRetryable(err) {
		t.Error("4xx error should not be retryable")
	}
}

func TestOpenAIProvider_MissingFile(t *testing.T) {
	p := NewOpenAIProvider("sk-test", WithBaseURL("http://127.0.0.1:1/"))
	if _, err := p.Transcribe(context.Background(), Request{Path: "/nonexistent/a.wav"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRetryProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Write([]byte(`{"text":"finally"}`))
	}))
	defer server.Close()

	p := NewRetryProvider(
		NewOpenAIProvider("sk-test", WithBaseURL(server.URL+"/")),
		WithRetryCount(3),
		WithBaseDelay(time.Millisecond),
	)

	result, err := p.Transcribe(context.Background(), Request{Path: createTestAudioFile(t), Model: "m"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "finally" {
		t.Errorf("Text = %q, want %q", result.Text, "finally")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}
