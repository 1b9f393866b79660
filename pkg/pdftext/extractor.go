// Package pdftext extracts per-page plain text from PDF documents.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/types"
)

// Only the first KiB may precede the header.
const headerWindow = 1024

var (
	pdfMagic   = []byte("%PDF-")
	encryptKey = []byte("/Encrypt")
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// IsPDF reports whether data carries a PDF header.
func IsPDF(data []byte) bool {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	return bytes.Contains(head, pdfMagic)
}

// ExtractPages returns one trimmed string per page. Pages whose text cannot
// be decoded are returned empty. Encrypted files are opened with the empty
// password once; if that fails, or the encryption scheme is unsupported,
// ErrEncryptedPDF is returned.
func (e *Extractor) ExtractPages(data []byte) (pages []string, err error) {
	if !IsPDF(data) {
		return nil, types.ErrUnsupportedInput
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed PDF: %v", types.ErrUnsupportedInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, types.ErrEncryptedPDF
		}
		// Security handlers the reader cannot open, such as AES-256.
		if bytes.Contains(data, encryptKey) {
			return nil, fmt.Errorf("%w: %v", types.ErrEncryptedPDF, err)
		}
		return nil, fmt.Errorf("%w: failed to open pdf: %v", types.ErrUnsupportedInput, err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		pages = append(pages, pageText(reader.Page(i), i))
	}

	return pages, nil
}

func pageText(p pdf.Page, num int) string {
	if p.V.IsNull() || p.V.Key("Contents").IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		logger.Warn("page %d: failed to extract text: %v", num, err)
		return ""
	}
	return strings.TrimSpace(text)
}
