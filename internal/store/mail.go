package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// SaveMessage records a processed Gmail message with its thread, labels and
// attachments in one transaction and returns the gml_messages id. Saving the
// same message again updates its processing state and replaces its
// attachment rows; the thread count only grows on the first save.
func (s *Store) SaveMessage(ctx context.Context, m *diary.MailMessage) (id int64, err error) {
	if m.MessageID == "" {
		return 0, fmt.Errorf("%w: message id is empty", diary.ErrStore)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", diary.ErrStore, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if m.ThreadID != "" {
		_, err = tx.ExecContext(ctx, `
			insert into gml_threads (thread_id, subject, message_count, last_message_date)
			values ($1, $2, 0, now())
			on conflict (thread_id) do nothing`,
			m.ThreadID, nullString(m.Subject))
		if err != nil {
			return 0, fmt.Errorf("%w: insert thread: %v", diary.ErrStore, err)
		}
	}

	var inserted bool
	err = tx.QueryRowContext(ctx, `
		insert into gml_messages (
			message_id, thread_id, sender, recipient, subject, date, internal_date,
			snippet, body_text, size_estimate, processed_successfully, label_applied,
			saved_to_db, processing_timestamp
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13)
		on conflict (message_id) do update set
			processed_successfully = excluded.processed_successfully,
			label_applied = excluded.label_applied,
			body_text = excluded.body_text,
			saved_to_db = true,
			processing_timestamp = excluded.processing_timestamp
		returning id, (xmax = 0)`,
		m.MessageID, nullString(m.ThreadID), nullString(m.Sender), nullString(m.Recipient),
		nullString(m.Subject), nullString(m.Date), nullTime(m.InternalDate),
		nullString(m.Snippet), nullString(m.BodyText), m.SizeEstimate, m.Processed,
		m.LabelApplied, nullTime(m.ProcessedAt),
	).Scan(&id, &inserted)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert message: %v", diary.ErrStore, err)
	}

	if inserted && m.ThreadID != "" {
		_, err = tx.ExecContext(ctx, `
			update gml_threads
			set message_count = message_count + 1, last_message_date = now()
			where thread_id = $1`, m.ThreadID)
		if err != nil {
			return 0, fmt.Errorf("%w: update thread: %v", diary.ErrStore, err)
		}
	}

	for _, label := range m.LabelIDs {
		_, err = tx.ExecContext(ctx, `
			insert into gml_labels (label_id, name, label_type)
			values ($1, $1, $2)
			on conflict (label_id) do nothing`,
			label, LabelType(label))
		if err != nil {
			return 0, fmt.Errorf("%w: insert label: %v", diary.ErrStore, err)
		}
		_, err = tx.ExecContext(ctx, `
			insert into gml_message_labels (message_id, label_id)
			values ($1, $2)
			on conflict do nothing`, id, label)
		if err != nil {
			return 0, fmt.Errorf("%w: link label: %v", diary.ErrStore, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `delete from gml_attachments where message_id = $1`, id); err != nil {
		return 0, fmt.Errorf("%w: clear attachments: %v", diary.ErrStore, err)
	}
	for _, a := range m.Attachments {
		_, err = tx.ExecContext(ctx, `
			insert into gml_attachments (
				message_id, attachment_id, filename, mime_type, size_bytes, file_path, download_status
			) values ($1, $2, $3, $4, $5, $6, $7)`,
			id, nullString(a.AttachmentID), nullString(a.Filename), nullString(a.MimeType),
			a.SizeBytes, nullString(a.FilePath), a.Status)
		if err != nil {
			return 0, fmt.Errorf("%w: insert attachment: %v", diary.ErrStore, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", diary.ErrStore, err)
	}
	return id, nil
}

// LabelType classifies a Gmail label ID. User labels are issued as Label_<n>;
// everything else (INBOX, UNREAD, CATEGORY_*) is a system label.
func LabelType(labelID string) string {
	if strings.HasPrefix(labelID, "Label_") {
		return "user"
	}
	return "system"
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
