// Package textextract turns uploaded files into plain text with form-feed page breaks.
package textextract

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// ErrUnsupportedFormat is returned for files no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Document is extracted text plus its page count.
type Document struct {
	Text  string
	Pages int
}

// FromBytes picks an extractor by file extension, falling back to content sniffing.
func FromBytes(name string, data []byte) (Document, error) {
	var (
		text string
		err  error
	)
	switch format(name, data) {
	case "pdf":
		text, err = fromPDF(data)
	case "html":
		text, err = fromHTML(data)
	case "text":
		text = fromPlain(data)
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Text: text, Pages: strings.Count(text, models.PageBreak) + 1}, nil
}

func format(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "pdf"
	case ".htm", ".html", ".xhtml":
		return "html"
	case ".txt", ".md", ".text", ".csv":
		return "text"
	}
	sniffed := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(sniffed, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(sniffed, "text/html"):
		return "html"
	case strings.HasPrefix(sniffed, "text/plain"):
		return "text"
	}
	return ""
}

func fromPlain(data []byte) string {
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}
