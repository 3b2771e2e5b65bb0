package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Downloader fetches files over HTTP with a bounded number of redirects.
type Downloader struct {
	client *http.Client
	logger *log.Logger
}

// NewDownloader creates a downloader that follows at most maxRedirects
// redirects per request.
func NewDownloader(maxRedirects int, timeout time.Duration, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
				}
				logger.Debug("Following redirect", "to", req.URL.String(), "hop", len(via))
				return nil
			},
		},
		logger: logger,
	}
}

// Download writes the body at url to dest. The file is written next to dest
// and renamed into place, so dest never holds a partial download.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("unable to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w %d for %s", ErrBadStatus, resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("unable to create file: %w", err)
	}

	pw := &progressWriter{
		name:   filepath.Base(dest),
		total:  resp.ContentLength,
		every:  rate.Sometimes{Interval: time.Second},
		logger: d.logger,
	}
	n, err := io.Copy(f, io.TeeReader(resp.Body, pw))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("unable to write %s: %w", filepath.Base(dest), err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("unable to move download into place: %w", err)
	}

	d.logger.Info("Downloaded", "file", filepath.Base(dest), "size", humanize.Bytes(uint64(n))) //nolint:gosec
	return nil
}

// progressWriter logs download progress at most once per interval.
type progressWriter struct {
	name    string
	total   int64
	written int64
	every   rate.Sometimes
	logger  *log.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.every.Do(func() {
		if p.total > 0 {
			p.logger.Info("Downloading",
				"file", p.name,
				"done", humanize.Bytes(uint64(p.written)), //nolint:gosec
				"total", humanize.Bytes(uint64(p.total))) //nolint:gosec
			return
		}
		p.logger.Info("Downloading", "file", p.name, "done", humanize.Bytes(uint64(p.written))) //nolint:gosec
	})
	return len(b), nil
}
