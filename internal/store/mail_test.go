package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

func mailMessage() *diary.MailMessage {
	return &diary.MailMessage{
		MessageID:    "msg-" + uuid.NewString(),
		ThreadID:     "thread-" + uuid.NewString(),
		Sender:       "Alice <alice@gmail.com>",
		Recipient:    "me@example.com",
		Subject:      "voice note",
		Date:         "Mon, 19 Oct 2026 08:00:00 +0000",
		InternalDate: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Snippet:      "dear diary",
		BodyText:     "dear diary",
		SizeEstimate: 2048,
		LabelIDs:     []string{"INBOX", "Label_7"},
		Attachments: []diary.MailAttachment{
			{AttachmentID: "a1", Filename: "memo.m4a", MimeType: "audio/mp4", SizeBytes: 10, FilePath: "/dl/gmail_x/memo.m4a", Status: diary.AttachmentDownloaded},
			{AttachmentID: "a2", Filename: "huge.wav", MimeType: "audio/wav", SizeBytes: 1 << 30, Status: diary.AttachmentSkipped},
		},
		Processed:    true,
		LabelApplied: true,
		ProcessedAt:  time.Now(),
	}
}

func TestLabelType(t *testing.T) {
	tests := map[string]string{
		"Label_12":          "user",
		"INBOX":             "system",
		"CATEGORY_PERSONAL": "system",
	}
	for id, want := range tests {
		if got := LabelType(id); got != want {
			t.Errorf("LabelType(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestSaveMessage_EmptyID(t *testing.T) {
	s := &Store{}
	if _, err := s.SaveMessage(context.Background(), &diary.MailMessage{}); !errors.Is(err, diary.ErrStore) {
		t.Errorf("SaveMessage() error = %v, want %v", err, diary.ErrStore)
	}
}

func TestSaveMessage_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := mailMessage()

	id, err := s.SaveMessage(ctx, m)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	var sender, status string
	var saved bool
	err = s.DB.QueryRowContext(ctx, `select sender, saved_to_db from gml_messages where id = $1`, id).Scan(&sender, &saved)
	if err != nil {
		t.Fatalf("query message: %v", err)
	}
	if sender != m.Sender || !saved {
		t.Errorf("sender = %q saved_to_db = %v", sender, saved)
	}

	var labels, attachments int
	s.DB.QueryRowContext(ctx, `select count(*) from gml_message_labels where message_id = $1`, id).Scan(&labels)
	s.DB.QueryRowContext(ctx, `select count(*) from gml_attachments where message_id = $1`, id).Scan(&attachments)
	if labels != 2 || attachments != 2 {
		t.Errorf("labels = %d attachments = %d, want 2 and 2", labels, attachments)
	}

	err = s.DB.QueryRowContext(ctx, `select download_status from gml_attachments where message_id = $1 and attachment_id = 'a2'`, id).Scan(&status)
	if err != nil || status != diary.AttachmentSkipped {
		t.Errorf("a2 status = %q (err %v), want %q", status, err, diary.AttachmentSkipped)
	}

	var labelType string
	s.DB.QueryRowContext(ctx, `select label_type from gml_labels where label_id = 'Label_7'`).Scan(&labelType)
	if labelType != "user" {
		t.Errorf("Label_7 type = %q, want user", labelType)
	}
}

func TestSaveMessage_SecondSaveUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := mailMessage()

	first, err := s.SaveMessage(ctx, m)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	m.LabelApplied = false
	m.Attachments = m.Attachments[:1]
	second, err := s.SaveMessage(ctx, m)
	if err != nil {
		t.Fatalf("second SaveMessage() error = %v", err)
	}
	if first != second {
		t.Errorf("ids = %d and %d, want the same row", first, second)
	}

	var count, attachments int
	var applied bool
	s.DB.QueryRowContext(ctx, `select message_count from gml_threads where thread_id = $1`, m.ThreadID).Scan(&count)
	s.DB.QueryRowContext(ctx, `select label_applied from gml_messages where id = $1`, first).Scan(&applied)
	s.DB.QueryRowContext(ctx, `select count(*) from gml_attachments where message_id = $1`, first).Scan(&attachments)
	if count != 1 {
		t.Errorf("message_count = %d, want 1", count)
	}
	if applied {
		t.Error("label_applied not updated")
	}
	if attachments != 1 {
		t.Errorf("attachments = %d, want 1", attachments)
	}
}
