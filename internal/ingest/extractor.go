package ingest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/docqa/internal/pkg/errs"
)

// ExtractText pulls plain text out of a downloaded document according to
// its detected format.
func ExtractText(dl *Download) (string, error) {
	data, err := os.ReadFile(dl.Path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %s", errs.ErrDocumentProcessing, dl.Filename, err.Error())
	}
	switch dl.Format {
	case "pdf":
		return extractPDFText(data)
	case "html":
		return extractHTMLText(data)
	case "txt":
		return extractPlainText(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported format for text extraction: %s", errs.ErrDocumentProcessing, dl.Format)
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %s", errs.ErrDocumentProcessing, err.Error())
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// a broken page should not sink the whole document
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractHTMLText converts markup to markdown, which drops scripts and
// styles while keeping the readable structure, then flattens whitespace.
func extractHTMLText(data []byte) (string, error) {
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: convert html: %s", errs.ErrDocumentProcessing, err.Error())
	}
	var parts []string
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " "), nil
}

// extractPlainText decodes UTF-8 content directly and falls back to a
// latin-1 reinterpretation for legacy files.
func extractPlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
