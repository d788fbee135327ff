package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultAttachmentDir is where channels store uploaded files.
const DefaultAttachmentDir = "data/attachments"

// SaveAttachment writes data under dir as <timestamp>_<sha256><ext> and
// returns the path and detected MIME type. Identical content uploaded in the
// same second maps to the same file.
func SaveAttachment(dir string, data []byte) (path, mimeType string, err error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty attachment")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create attachment dir: %w", err)
	}

	mimeType, ext := DetectMime(data)
	sum := sha256.Sum256(data)
	path = filepath.Join(dir, TimestampPrefix()+hex.EncodeToString(sum[:])+ext)

	if _, statErr := os.Stat(path); statErr == nil {
		return path, mimeType, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write attachment: %w", err)
	}
	return path, mimeType, nil
}

// PruneAttachments removes files in dir whose timestamp prefix is older than
// maxAge and returns how many were removed. A missing dir is not an error.
func PruneAttachments(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !OlderThan(e.Name(), maxAge) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("Failed to remove attachment", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
