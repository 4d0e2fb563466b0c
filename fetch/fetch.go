// Package fetch makes sure the source clip is present on disk before the
// pipeline starts, downloading and checksumming it when needed.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// EnsureVideo guarantees that the clip at path exists and, when wantMD5 is
// set, matches it. A sidecar file next to the clip caches the digest so
// restarts do not rehash a large file.
func EnsureVideo(ctx context.Context, logger *zap.Logger, path, url, wantMD5 string) error {
	wantMD5 = strings.ToLower(strings.TrimSpace(wantMD5))
	if ok, err := verify(path, wantMD5); err != nil {
		return err
	} else if ok {
		logger.Info("video present", zap.String("path", path))
		return nil
	}
	if url == "" {
		return fmt.Errorf("video %q missing and no download url configured", path)
	}
	logger.Info("downloading video", zap.String("url", url), zap.String("path", path))
	if err := download(ctx, path, url, wantMD5); err != nil {
		return err
	}
	logger.Info("video downloaded", zap.String("path", path))
	return nil
}

// verify reports whether the file exists and matches the checksum. An
// empty checksum only requires existence.
func verify(path, wantMD5 string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat video: %w", err)
	}
	if wantMD5 == "" {
		return true, nil
	}
	sum, err := cachedSum(path)
	if err != nil {
		return false, err
	}
	return sum == wantMD5, nil
}

func sidecarPath(path string) string {
	return path + ".md5"
}

// cachedSum returns the file's md5, consulting the sidecar first and
// refreshing it when stale or absent.
func cachedSum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}
	if raw, err := os.ReadFile(sidecarPath(path)); err == nil {
		if side, err := os.Stat(sidecarPath(path)); err == nil && !side.ModTime().Before(info.ModTime()) {
			return strings.ToLower(strings.TrimSpace(string(raw))), nil
		}
	}
	sum, err := fileSum(path)
	if err != nil {
		return "", err
	}
	// Best effort: the cache only saves a rehash on the next start.
	os.WriteFile(sidecarPath(path), []byte(sum+"\n"), 0o644)
	return sum, nil
}

func fileSum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash video: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func download(ctx context.Context, path, url, wantMD5 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download video: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".video-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close video: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if wantMD5 != "" && sum != wantMD5 {
		return fmt.Errorf("video checksum mismatch: got %s, want %s", sum, wantMD5)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move video into place: %w", err)
	}
	os.WriteFile(sidecarPath(path), []byte(sum+"\n"), 0o644)
	return nil
}
