package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"go.uber.org/zap"
)

var supportedFormats = map[string]struct{}{
	"pdf":  {},
	"html": {},
	"txt":  {},
}

// Download describes one fetched document on local disk. Temp files are
// owned by the caller and removed after extraction.
type Download struct {
	Path        string
	Filename    string
	Format      string
	SizeBytes   int64
	ContentType string
	Source      string
	Temp        bool
}

type DownloaderConfig struct {
	MaxSizeBytes int64
	Timeout      time.Duration
	TempDir      string
}

// Downloader materializes document sources as local files. A source that
// resolves to an existing path is used in place, anything else is fetched
// over HTTP into the temp dir.
type Downloader struct {
	cfg    DownloaderConfig
	client *http.Client
}

func NewDownloader(cfg DownloaderConfig) *Downloader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Downloader{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (d *Downloader) Fetch(ctx context.Context, source string) (*Download, error) {
	if info, err := os.Stat(source); err == nil && info.Mode().IsRegular() {
		return d.fromLocalFile(source, info.Size())
	}
	return d.fromURL(ctx, source)
}

func (d *Downloader) fromLocalFile(source string, size int64) (*Download, error) {
	if d.cfg.MaxSizeBytes > 0 && size > d.cfg.MaxSizeBytes {
		return nil, fmt.Errorf("%w: document too large: %d bytes", errs.ErrDocumentDownload, size)
	}
	filename := filepath.Base(source)
	format := determineFormat(filename, "")
	if format == "txt" && filepath.Ext(filename) == "" {
		format = sniffFormat(source, format)
	}
	if _, ok := supportedFormats[format]; !ok {
		return nil, fmt.Errorf("%w: unsupported file format: %s", errs.ErrDocumentDownload, format)
	}
	return &Download{
		Path:        source,
		Filename:    filename,
		Format:      format,
		SizeBytes:   size,
		ContentType: "application/" + format,
		Source:      source,
		Temp:        false,
	}, nil
}

func (d *Downloader) fromURL(ctx context.Context, source string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDocumentDownload, err.Error())
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDocumentDownload, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: fetch failed: %s", errs.ErrDocumentDownload, resp.Status)
	}
	if d.cfg.MaxSizeBytes > 0 && resp.ContentLength > d.cfg.MaxSizeBytes {
		return nil, fmt.Errorf("%w: document too large: %d bytes", errs.ErrDocumentDownload, resp.ContentLength)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	filename := filenameFromURL(source, contentType)
	format := determineFormat(filename, contentType)
	if _, ok := supportedFormats[format]; !ok {
		return nil, fmt.Errorf("%w: unsupported file format: %s", errs.ErrDocumentDownload, format)
	}

	tmp, err := os.CreateTemp(d.cfg.TempDir, "docqa-*."+format)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %s", errs.ErrDocumentDownload, err.Error())
	}
	body := io.Reader(resp.Body)
	if d.cfg.MaxSizeBytes > 0 {
		body = io.LimitReader(resp.Body, d.cfg.MaxSizeBytes+1)
	}
	written, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: save document: %s", errs.ErrDocumentDownload, err.Error())
	}
	if d.cfg.MaxSizeBytes > 0 && written > d.cfg.MaxSizeBytes {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: document too large: %d bytes", errs.ErrDocumentDownload, written)
	}
	logutil.GetLogger(ctx).Info("downloaded document",
		zap.String("source", source), zap.String("format", format), zap.Int64("size", written))
	return &Download{
		Path:        tmp.Name(),
		Filename:    filename,
		Format:      format,
		SizeBytes:   written,
		ContentType: contentType,
		Source:      source,
		Temp:        true,
	}, nil
}

// Cleanup removes downloaded temp files, keeping caller-owned local files.
func (d *Downloader) Cleanup(dl *Download) {
	if dl == nil || !dl.Temp {
		return
	}
	_ = os.Remove(dl.Path)
}

func filenameFromURL(rawURL string, contentType string) string {
	base := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if path.Ext(base) != "" {
		return base
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(rawURL))
	suffix := "txt"
	switch {
	case strings.Contains(contentType, "pdf"):
		suffix = "pdf"
	case strings.Contains(contentType, "html"):
		suffix = "html"
	}
	return fmt.Sprintf("document_%04d.%s", h.Sum32()%10000, suffix)
}

func determineFormat(filename string, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if _, ok := supportedFormats[ext]; ok {
		return ext
	}
	switch {
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "html"):
		return "html"
	case ext != "" && ext != "txt":
		return ext
	default:
		return "txt"
	}
}

// sniffFormat inspects file bytes when neither extension nor content type
// settle the format.
func sniffFormat(path string, fallback string) string {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return fallback
	}
	switch {
	case detected.Is("application/pdf"):
		return "pdf"
	case detected.Is("text/html"):
		return "html"
	default:
		return fallback
	}
}
