// Package client provides speech-to-text providers and the retry wrapper
// that sits beneath the transcription service.
package client

import (
	"context"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// Format selects the response body the provider asks for.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Request describes one transcription call.
type Request struct {
	// Path is the audio file to upload.
	Path string
	// Model is the provider model name.
	Model string
	// Language pins the spoken language; empty lets the provider decide.
	Language string
	// Temperature is the sampling temperature.
	Temperature float64
	// Format is the requested response format (default: json).
	Format Format
}

// Provider sends an audio file to a speech-to-text service.
// Implementations return the response already normalized into a diary.Transcription.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*diary.Transcription, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (*diary.Transcription, error)

// Transcribe calls f.
func (f ProviderFunc) Transcribe(ctx context.Context, req Request) (*diary.Transcription, error) {
	return f(ctx, req)
}
