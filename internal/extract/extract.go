// Package extract reads plain text, Word and PDF documents into diary text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
)

// MaxTitleRunes is the longest title derived from document text.
const MaxTitleRunes = 255

// Warning is a non-fatal problem met while extracting.
type Warning struct {
	Page    int
	Message string
}

func (w Warning) String() string {
	if w.Page > 0 {
		return fmt.Sprintf("page %d: %s", w.Page, w.Message)
	}
	return w.Message
}

// Extract reads the document at path. PDF problems are reported as warnings
// and never as errors.
func Extract(path string) (*diary.ExtractedText, []Warning, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", diary.ErrNotFound, path)
	}

	ext := strings.ToLower(filepath.Ext(path))

	var (
		text     string
		warnings []Warning
	)
	switch ext {
	case ".txt":
		text, err = readText(path)
	case ".docx":
		text, err = readDocx(path, info.Size())
	case ".pdf":
		text, warnings = readPDF(path)
	default:
		return nil, nil, fmt.Errorf("%w: %s", diary.ErrUnsupportedType, ext)
	}
	if err != nil {
		return nil, warnings, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &diary.ExtractedText{
		Text:       text,
		Title:      Title(text, path),
		SourceFile: abs,
		FileType:   strings.TrimPrefix(ext, "."),
	}, warnings, nil
}

// Title returns the first non-empty line of text cut to MaxTitleRunes, or the
// file name without extension when the text has no content.
func Title(text, path string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > MaxTitleRunes {
			line = string([]rune(line)[:MaxTitleRunes])
		}
		return line
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// legacyEncodings are tried in order once the bytes are not valid UTF-8.
// ISO 8859-1 maps every byte, so Windows-1252 is only a last resort.
var legacyEncodings = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", diary.ErrNotFound, path)
	}
	return decodeText(data)
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	for _, enc := range legacyEncodings {
		out, err := enc.NewDecoder().Bytes(data)
		if err == nil {
			return string(out), nil
		}
	}
	return "", diary.ErrDecode
}

func readDocx(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", diary.ErrNotFound, path)
	}
	defer f.Close()

	doc, err := docx.Parse(f, size)
	if err != nil {
		return "", fmt.Errorf("%w: read docx: %v", diary.ErrDecode, err)
	}

	var paras []string
	for _, item := range doc.Document.Body.Items {
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(p.String()); s != "" {
			paras = append(paras, s)
		}
	}
	return strings.Join(paras, "\n"), nil
}

var errNoPDFText = errors.New("no extractable text in PDF")

func readPDF(path string) (text string, warnings []Warning) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			warnings = append(warnings, Warning{Message: fmt.Sprintf("malformed pdf: %v", r)})
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", []Warning{{Message: fmt.Sprintf("open pdf: %v", err)}}
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			warnings = append(warnings, Warning{Page: i, Message: err.Error()})
			continue
		}
		if s := strings.TrimSpace(pageText); s != "" {
			pages = append(pages, s)
		}
	}

	if len(pages) == 0 {
		warnings = append(warnings, Warning{Message: errNoPDFText.Error()})
		return "", warnings
	}
	return strings.Join(pages, "\n"), warnings
}
