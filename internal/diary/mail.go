package diary

import "time"

// Attachment download states recorded for a mail message.
const (
	AttachmentDownloaded = "downloaded"
	AttachmentSkipped    = "skipped"
	AttachmentFailed     = "failed"
)

// MailAttachment is one attachment of a processed message.
type MailAttachment struct {
	AttachmentID string
	Filename     string
	MimeType     string
	SizeBytes    int64
	// FilePath is empty unless Status is AttachmentDownloaded.
	FilePath string
	Status   string
}

// MailMessage is a Gmail message handled by the download phase, kept as an
// audit record next to the files it produced.
type MailMessage struct {
	MessageID string
	ThreadID  string
	Sender    string
	Recipient string
	Subject   string
	// Date is the Date header as sent.
	Date         string
	InternalDate time.Time
	Snippet      string
	BodyText     string
	SizeEstimate int64
	LabelIDs     []string
	Attachments  []MailAttachment

	Processed    bool
	LabelApplied bool
	ProcessedAt  time.Time
}
