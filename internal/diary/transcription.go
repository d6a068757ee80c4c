package diary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Meta records the options a transcription was produced with. It is serialized
// under the "_meta" key of the response object.
type Meta struct {
	Model                  string  `json:"model"`
	DetectModel            string  `json:"detect_model"`
	SourceFile             string  `json:"source_file"`
	ForcedLanguage         bool    `json:"forced_language"`
	LanguageRoutingEnabled bool    `json:"language_routing_enabled"`
	RoutedLanguage         *string `json:"routed_language"`
	ProbeSeconds           *int    `json:"probe_seconds"`
	FFmpegUsed             bool    `json:"ffmpeg_used"`
	DryRun                 bool    `json:"dry_run,omitempty"`
	FFmpegAvailable        *bool   `json:"ffmpeg_available,omitempty"`

	// RecordedAt and DurationSeconds come from the audio container header.
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

// Usage is the token accounting reported by the provider. Nil counters were
// absent from the response.
type Usage struct {
	Type         string
	InputTokens  *int64
	OutputTokens *int64
	TotalTokens  *int64
	AudioTokens  *int64
	TextTokens   *int64
}

// Transcription is the canonical record for a provider response. Whatever shape
// the provider returned, the remaining pipeline only sees this type.
type Transcription struct {
	Text     string
	Language string
	Logprobs json.RawMessage
	Usage    *Usage
	Meta     *Meta

	// fields holds the full response object so it can be stored verbatim.
	fields map[string]json.RawMessage
	// decodedMeta is the Meta read from the response together with its value
	// at decode time. While Meta still matches it, the raw "_meta" is written back.
	decodedMeta     *Meta
	decodedMetaCopy Meta
}

type usageJSON struct {
	Type              string `json:"type"`
	InputTokens       *int64 `json:"input_tokens"`
	OutputTokens      *int64 `json:"output_tokens"`
	TotalTokens       *int64 `json:"total_tokens"`
	InputTokenDetails *struct {
		AudioTokens *int64 `json:"audio_tokens"`
		TextTokens  *int64 `json:"text_tokens"`
	} `json:"input_token_details"`
}

// NormalizeResponse turns a provider response body into a Transcription. It
// accepts a JSON object, a JSON string, or a plain-text body.
func NormalizeResponse(body []byte) (*Transcription, error) {
	trimmed := bytes.TrimSpace(body)
	t := &Transcription{fields: map[string]json.RawMessage{}}

	switch {
	case len(trimmed) == 0:
		return t, nil
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &t.fields); err != nil {
			return nil, fmt.Errorf("decode response object: %w", err)
		}
		if err := t.decodeFields(); err != nil {
			return nil, err
		}
		return t, nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			t.Text = s
			return t, nil
		}
	}

	t.Text = string(trimmed)
	return t, nil
}

// PlainTextResponse wraps a text-format body. The body is never parsed, so
// transcripts that begin with "{" or a quote keep their content.
func PlainTextResponse(body []byte) *Transcription {
	return &Transcription{
		Text:   string(bytes.TrimSpace(body)),
		fields: map[string]json.RawMessage{},
	}
}

func (t *Transcription) decodeFields() error {
	if raw, ok := t.fields["text"]; ok {
		if err := json.Unmarshal(raw, &t.Text); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
	}
	if raw, ok := t.fields["language"]; ok {
		// Non-string languages are ignored.
		_ = json.Unmarshal(raw, &t.Language)
	}
	if raw, ok := t.fields["logprobs"]; ok && !isNull(raw) {
		t.Logprobs = raw
	}
	if raw, ok := t.fields["usage"]; ok && !isNull(raw) {
		var u usageJSON
		if err := json.Unmarshal(raw, &u); err != nil {
			return fmt.Errorf("decode usage: %w", err)
		}
		t.Usage = &Usage{
			Type:         u.Type,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			TotalTokens:  u.TotalTokens,
		}
		if u.InputTokenDetails != nil {
			t.Usage.AudioTokens = u.InputTokenDetails.AudioTokens
			t.Usage.TextTokens = u.InputTokenDetails.TextTokens
		}
	}
	if raw, ok := t.fields["_meta"]; ok && !isNull(raw) {
		var m Meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("decode _meta: %w", err)
		}
		t.Meta = &m
		t.decodedMeta = &m
		t.decodedMetaCopy = m
	}
	return nil
}

// MarshalJSON writes the full response object with the current text and the
// "_meta" block. A "_meta" read from the response is written back byte for
// byte unless Meta was replaced or changed since.
func (t *Transcription) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.fields)+2)
	for k, v := range t.fields {
		out[k] = v
	}
	out["text"] = t.Text
	if t.Language != "" {
		out["language"] = t.Language
	}
	switch {
	case t.Meta == nil:
		delete(out, "_meta")
	case t.Meta != t.decodedMeta || *t.Meta != t.decodedMetaCopy:
		out["_meta"] = t.Meta
	}
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
