package modelcache

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

const bodyStallLimit = 2 * time.Minute

// artifactClient has no total timeout; model artifacts can take a long
// time. Per-phase timeouts plus the body watchdog bound each stall instead.
var artifactClient = &http.Client{
	Transport: &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 60 * time.Second}).DialContext,
		TLSHandshakeTimeout:   60 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       60 * time.Second,
	},
}

// downloadWithRetries fetches url into destPath, resuming partial
// downloads across attempts.
func downloadWithRetries(ctx context.Context, url, destPath string, logger *zap.Logger) error {
	tmpPath := destPath + ".tmp"

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Minute
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second

	return backoff.Retry(func() error {
		return downloadWithResume(ctx, url, destPath, tmpPath, logger)
	}, backoff.WithContext(b, ctx))
}

func downloadWithResume(ctx context.Context, url, destPath, tmpPath string, logger *zap.Logger) error {
	var start int64
	if info, err := os.Stat(tmpPath); err == nil {
		start = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if start > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := artifactClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var totalSize int64
	switch {
	case start > 0 && resp.StatusCode == http.StatusPartialContent:
		totalSize = start + resp.ContentLength
	case start > 0 && resp.StatusCode == http.StatusOK:
		logger.Warn("server does not support resume, restarting download")
		start = 0
		totalSize = resp.ContentLength
	case resp.StatusCode == http.StatusOK:
		totalSize = resp.ContentLength
	case start > 0:
		return fmt.Errorf("resume failed with status %d", resp.StatusCode)
	default:
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if start > 0 {
		mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(tmpPath, mode, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	bar := newDownloadBar(filepath.Base(destPath), totalSize, start)

	// A read blocked longer than the stall limit gets its body closed out
	// from under it, failing the attempt so the retry loop can resume.
	watchdog := time.AfterFunc(bodyStallLimit, func() { resp.Body.Close() })
	defer watchdog.Stop()

	written, err := io.Copy(
		&watchdogWriter{dest: f, watchdog: watchdog},
		bar.ProxyReader(resp.Body),
	)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	if done := start + written; totalSize > 0 && done != totalSize {
		return fmt.Errorf("download size mismatch: expected %d, got %d", totalSize, done)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	return nil
}

type watchdogWriter struct {
	dest     io.Writer
	watchdog *time.Timer
}

func (w *watchdogWriter) Write(p []byte) (int, error) {
	w.watchdog.Reset(bodyStallLimit)
	return w.dest.Write(p)
}

func newDownloadBar(name string, total, current int64) *mpb.Bar {
	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	if current > 0 {
		bar.SetCurrent(current)
	}

	return bar
}
