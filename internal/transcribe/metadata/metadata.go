// Package metadata reads the recording time and duration from audio file
// headers without decoding the audio.
package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidFormat indicates the file does not have the expected container layout.
var ErrInvalidFormat = errors.New("invalid audio container")

// ErrUnsupported is returned for formats without a header reader.
var ErrUnsupported = errors.New("no metadata reader for format")

// Recording holds what the container header says about a recording.
// RecordedAt is zero when the container has no creation time.
type Recording struct {
	RecordedAt time.Time
	Duration   time.Duration
}

// macEpoch is the origin of ISO base media file format timestamps.
var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// Read dispatches on the file extension. M4A and WAV are supported.
func Read(path string) (*Recording, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a":
		return ReadM4A(path)
	case ".wav":
		return ReadWAV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

// ReadM4A reads the creation time and duration from the moov/mvhd box.
func ReadM4A(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseM4A(f)
}

func parseM4A(r io.ReadSeeker) (*Recording, error) {
	rec := &Recording{}
	var foundFtyp, foundMvhd bool

	for {
		size, boxType, err := readBoxHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if size < 8 {
			return nil, ErrInvalidFormat
		}
		body := int64(size) - 8

		switch boxType {
		case "ftyp":
			if err := checkBrand(r, body); err != nil {
				return nil, err
			}
			foundFtyp = true
		case "moov":
			found, err := parseMoov(r, body, rec)
			if err != nil {
				return nil, err
			}
			foundMvhd = foundMvhd || found
		default:
			if _, err := r.Seek(body, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	if !foundFtyp || !foundMvhd {
		return nil, ErrInvalidFormat
	}
	return rec, nil
}

func readBoxHeader(r io.Reader) (uint32, string, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, "", ErrInvalidFormat
		}
		return 0, "", err
	}
	return binary.BigEndian.Uint32(header[0:4]), string(header[4:8]), nil
}

var m4aBrands = map[string]bool{"M4A ": true, "mp41": true, "mp42": true, "isom": true}

func checkBrand(r io.ReadSeeker, body int64) error {
	if body < 4 {
		return ErrInvalidFormat
	}
	var brand [4]byte
	if _, err := io.ReadFull(r, brand[:]); err != nil {
		return ErrInvalidFormat
	}
	if !m4aBrands[string(brand[:])] {
		return ErrInvalidFormat
	}
	_, err := r.Seek(body-4, io.SeekCurrent)
	return err
}

// parseMoov scans the children of moov and reports whether mvhd was read.
func parseMoov(r io.ReadSeeker, body int64, rec *Recording) (bool, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	end := start + body
	found := false

	for {
		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return found, err
		}
		if pos >= end {
			return found, nil
		}

		size, boxType, err := readBoxHeader(r)
		if err != nil {
			return found, err
		}
		if size < 8 {
			return found, ErrInvalidFormat
		}
		child := int64(size) - 8

		if boxType != "mvhd" {
			if _, err := r.Seek(child, io.SeekCurrent); err != nil {
				return found, err
			}
			continue
		}
		if err := parseMvhd(r, child, rec); err != nil {
			return found, err
		}
		found = true
	}
}

// parseMvhd handles both the 32-bit (version 0) and 64-bit (version 1) layouts.
func parseMvhd(r io.ReadSeeker, body int64, rec *Recording) error {
	var version [4]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return ErrInvalidFormat
	}

	var (
		created   uint64
		timescale uint32
		duration  uint64
		read      int64 = 4
	)
	switch version[0] {
	case 0:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return ErrInvalidFormat
		}
		created = uint64(binary.BigEndian.Uint32(b[0:4]))
		timescale = binary.BigEndian.Uint32(b[8:12])
		duration = uint64(binary.BigEndian.Uint32(b[12:16]))
		read += 16
	case 1:
		var b [28]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return ErrInvalidFormat
		}
		created = binary.BigEndian.Uint64(b[0:8])
		timescale = binary.BigEndian.Uint32(b[16:20])
		duration = binary.BigEndian.Uint64(b[20:28])
		read += 28
	default:
		return ErrInvalidFormat
	}

	if created > 0 {
		rec.RecordedAt = macEpoch.Add(time.Duration(created) * time.Second)
	}
	if timescale > 0 {
		rec.Duration = time.Duration(duration) * time.Second / time.Duration(timescale)
	}

	if body > read {
		if _, err := r.Seek(body-read, io.SeekCurrent); err != nil {
			return err
		}
	}
	return nil
}

// ReadWAV computes the duration from the RIFF fmt and data chunks. WAV has no
// standard creation time, so RecordedAt stays zero.
func ReadWAV(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseWAV(f)
}

func parseWAV(r io.ReadSeeker) (*Recording, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, ErrInvalidFormat
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrInvalidFormat
	}

	var byteRate uint32
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, ErrInvalidFormat
		}
		id := string(header[0:4])
		size := int64(binary.LittleEndian.Uint32(header[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrInvalidFormat
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return nil, ErrInvalidFormat
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			if _, err := r.Seek(size-16+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		case "data":
			if byteRate == 0 {
				return nil, ErrInvalidFormat
			}
			return &Recording{
				Duration: time.Duration(size) * time.Second / time.Duration(byteRate),
			}, nil
		default:
			// Chunks are padded to an even size.
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}
