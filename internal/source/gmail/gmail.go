// Package gmail downloads diary attachments from a Gmail mailbox and labels
// the messages it has handled.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/TechnicallyShaun/nota-diary/internal/config"
	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
	"github.com/TechnicallyShaun/nota-diary/internal/source"
)

const (
	user       = "me"
	inboxLabel = "INBOX"
	// BodyFileName holds the plain-text body when SaveBody is set.
	BodyFileName = "body.txt"
)

var ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

// Options configure one download run.
type Options struct {
	DownloadDir       string
	SearchQuery       string
	ProcessedLabel    string
	MaxPerRun         int64
	AllowedSenders    []string
	MaxAttachmentSize int64
	SaveBody          bool
}

// OptionsFromConfig maps the gmail section of the config file.
func OptionsFromConfig(downloadDir string, cfg config.GmailConfig) Options {
	return Options{
		DownloadDir:       downloadDir,
		SearchQuery:       cfg.SearchQuery,
		ProcessedLabel:    cfg.ProcessedLabel,
		MaxPerRun:         int64(cfg.MaxPerRun),
		AllowedSenders:    cfg.AllowedSenders,
		MaxAttachmentSize: cfg.MaxAttachmentSize,
		SaveBody:          cfg.SaveBody,
	}
}

// Result counts one run.
type Result struct {
	// Messages is the number of listed messages from allowed senders.
	Messages int
	// Processed is the number of messages saved and labelled.
	Processed int
	// Files are the paths written, bodies included.
	Files []string
}

// MessageStore records processed messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *diary.MailMessage) (int64, error)
}

// Downloader saves attachments from matching messages.
type Downloader struct {
	svc    *gmailapi.Service
	opts   Options
	store  MessageStore
	logger logging.Logger
	now    func() time.Time
}

// New creates a Downloader using the given client options.
func New(ctx context.Context, opts Options, logger logging.Logger, clientOpts ...option.ClientOption) (*Downloader, error) {
	svc, err := gmailapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Downloader{
		svc:    svc,
		opts:   opts,
		logger: logger.WithComponent("gmail"),
		now:    time.Now,
	}, nil
}

// WithStore records every processed message in st. A nil store turns
// recording off.
func (d *Downloader) WithStore(st MessageStore) *Downloader {
	d.store = st
	return d
}

// Run lists messages matching the search query and processes them oldest
// first. A message whose attachments all saved is labelled processed and
// removed from the inbox; failed messages stay for the next run.
func (d *Downloader) Run(ctx context.Context) (Result, error) {
	var result Result

	call := d.svc.Users.Messages.List(user).Q(d.opts.SearchQuery).Context(ctx)
	if d.opts.MaxPerRun > 0 {
		call = call.MaxResults(d.opts.MaxPerRun)
	}
	resp, err := call.Do()
	if err != nil {
		return result, fmt.Errorf("list messages: %w", err)
	}
	d.logger.Info("messages listed",
		logging.String("query", d.opts.SearchQuery),
		logging.Int("count", len(resp.Messages)),
	)
	if len(resp.Messages) == 0 {
		return result, nil
	}

	labels := newLabelCache(d.svc, d.logger)

	// The API lists newest first.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id := resp.Messages[i].Id

		msg, err := d.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			d.logger.Error("failed to fetch message", err, logging.String("id", id))
			continue
		}

		sender := header(msg.Payload, "From")
		if !SenderAllowed(sender, d.opts.AllowedSenders) {
			d.logger.Debug("sender not allowed",
				logging.String("id", id),
				logging.String("from", sender),
			)
			continue
		}
		result.Messages++

		files, attachments, err := d.saveMessage(ctx, msg)
		result.Files = append(result.Files, files...)
		if err != nil {
			d.logger.Error("failed to save message", err, logging.String("id", id))
			continue
		}

		labelled := true
		if err := labels.markProcessed(ctx, id, d.opts.ProcessedLabel); err != nil {
			labelled = false
			d.logger.Warn("failed to update labels",
				logging.String("id", id),
				logging.String("error", err.Error()),
			)
		}
		d.record(ctx, Record(msg, attachments, labelled, d.now()))
		result.Processed++
		d.logger.Info("message processed",
			logging.String("id", id),
			logging.String("subject", header(msg.Payload, "Subject")),
			logging.Int("files", len(files)),
		)
	}
	return result, nil
}

// MessageDir is the folder that holds one message's files.
func MessageDir(downloadDir, messageID string) string {
	return filepath.Join(downloadDir, "gmail_"+messageID)
}

// record stores the message audit row. A store failure is logged and never
// fails the message; its files and labels are already in place.
func (d *Downloader) record(ctx context.Context, m *diary.MailMessage) {
	if d.store == nil {
		return
	}
	id, err := d.store.SaveMessage(ctx, m)
	if err != nil {
		d.logger.Error("failed to record message", err, logging.String("id", m.MessageID))
		return
	}
	d.logger.Debug("message recorded", logging.String("id", m.MessageID), logging.Int64("row", id))
}

func (d *Downloader) saveMessage(ctx context.Context, msg *gmailapi.Message) ([]string, []diary.MailAttachment, error) {
	dir := MessageDir(d.opts.DownloadDir, msg.Id)
	var (
		files       []string
		attachments []diary.MailAttachment
	)

	for _, part := range attachmentParts(msg.Payload) {
		a := diary.MailAttachment{
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			SizeBytes:    part.Body.Size,
		}
		out, err := d.saveAttachment(ctx, msg.Id, part, dir)
		switch {
		case errors.Is(err, ErrAttachmentTooLarge):
			d.logger.Warn("skipping attachment",
				logging.String("id", msg.Id),
				logging.String("filename", part.Filename),
				logging.String("error", err.Error()),
			)
			a.Status = diary.AttachmentSkipped
			attachments = append(attachments, a)
			continue
		case err != nil:
			return files, attachments, err
		}
		a.FilePath = out
		a.Status = diary.AttachmentDownloaded
		attachments = append(attachments, a)
		files = append(files, out)
	}

	if d.opts.SaveBody {
		if body := PlainText(msg.Payload); strings.TrimSpace(body) != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return files, attachments, fmt.Errorf("create message dir: %w", err)
			}
			out := source.UniquePath(dir, BodyFileName, d.now())
			if err := os.WriteFile(out, []byte(body), 0644); err != nil {
				return files, attachments, fmt.Errorf("write body: %w", err)
			}
			files = append(files, out)
		}
	}
	return files, attachments, nil
}

// Record builds the audit row for a processed message.
func Record(msg *gmailapi.Message, attachments []diary.MailAttachment, labelled bool, now time.Time) *diary.MailMessage {
	m := &diary.MailMessage{
		MessageID:    msg.Id,
		ThreadID:     msg.ThreadId,
		Sender:       header(msg.Payload, "From"),
		Recipient:    header(msg.Payload, "To"),
		Subject:      header(msg.Payload, "Subject"),
		Date:         header(msg.Payload, "Date"),
		Snippet:      msg.Snippet,
		BodyText:     PlainText(msg.Payload),
		SizeEstimate: msg.SizeEstimate,
		LabelIDs:     msg.LabelIds,
		Attachments:  attachments,
		Processed:    true,
		LabelApplied: labelled,
		ProcessedAt:  now,
	}
	if msg.InternalDate > 0 {
		m.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	return m
}

func (d *Downloader) saveAttachment(ctx context.Context, messageID string, part *gmailapi.MessagePart, dir string) (string, error) {
	limit := d.opts.MaxAttachmentSize
	if limit > 0 && part.Body.Size > limit {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrAttachmentTooLarge, part.Filename, part.Body.Size)
	}

	body, err := d.svc.Users.Messages.Attachments.Get(user, messageID, part.Body.AttachmentId).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get attachment %s: %w", part.Filename, err)
	}
	data, err := decodeData(body.Data)
	if err != nil {
		return "", fmt.Errorf("decode attachment %s: %w", part.Filename, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrAttachmentTooLarge, part.Filename, len(data))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create message dir: %w", err)
	}
	out := source.UniquePath(dir, source.SanitizeFilename(part.Filename, "unnamed_attachment"), d.now())
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	d.logger.Debug("attachment saved",
		logging.String("filename", part.Filename),
		logging.String("path", out),
		logging.Int("bytes", len(data)),
	)
	return out, nil
}

// SenderAllowed reports whether the From header matches one of the glob
// patterns, compared case-insensitively on the bare address. An empty
// pattern list allows everyone.
func SenderAllowed(from string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	addr := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = parsed.Address
	}
	addr = strings.ToLower(addr)

	for _, p := range patterns {
		if ok, err := path.Match(strings.ToLower(strings.TrimSpace(p)), addr); err == nil && ok {
			return true
		}
	}
	return false
}

// attachmentParts walks the MIME tree and returns parts that carry a
// downloadable attachment.
func attachmentParts(p *gmailapi.MessagePart) []*gmailapi.MessagePart {
	if p == nil {
		return nil
	}
	var out []*gmailapi.MessagePart
	if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
		out = append(out, p)
	}
	for _, child := range p.Parts {
		out = append(out, attachmentParts(child)...)
	}
	return out
}

// PlainText returns the first text/plain body in the MIME tree.
func PlainText(p *gmailapi.MessagePart) string {
	if p == nil {
		return ""
	}
	if p.MimeType == "text/plain" && p.Filename == "" && p.Body != nil && p.Body.Data != "" {
		if data, err := decodeData(p.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, child := range p.Parts {
		if text := PlainText(child); text != "" {
			return text
		}
	}
	return ""
}

func header(p *gmailapi.MessagePart, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeData decodes the API's URL-safe base64, with or without padding.
func decodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
