package diary

import "errors"

// Error kinds shared by the discovery, extraction, transcription and ingestion layers.
var (
	ErrNotFound        = errors.New("file not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrDecode          = errors.New("could not decode text")
	ErrEmptyContent    = errors.New("transcription text is empty")
	ErrRemoteCall      = errors.New("remote call failed")
	ErrStore           = errors.New("store operation failed")
)
