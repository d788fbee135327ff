package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 24 {
		t.Fatalf("len = %d, want 24", len(a))
	}
	if a == b {
		t.Fatalf("ids should differ: %s", a)
	}
	created, err := CreatedAt(a)
	if err != nil {
		t.Fatalf("CreatedAt: %v", err)
	}
	if d := time.Since(created); d < 0 || d > time.Minute {
		t.Errorf("created %v ago", d)
	}
}

func TestCreatedAt_Invalid(t *testing.T) {
	for _, name := range []string{"", "abc", "zzzzzzzz_file.png"} {
		if _, err := CreatedAt(name); err == nil {
			t.Errorf("CreatedAt(%q) should fail", name)
		}
		if OlderThan(name, 0) {
			t.Errorf("OlderThan(%q) should be false", name)
		}
	}
}

func TestOlderThan(t *testing.T) {
	old := timestampPrefixAt(time.Now().Add(-48*time.Hour)) + "x.png"
	if !OlderThan(old, 24*time.Hour) {
		t.Error("48h old name should be older than 24h")
	}
	if OlderThan(TimestampPrefix()+"x.png", time.Hour) {
		t.Error("fresh name should not be old")
	}
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		data     []byte
		wantMime string
		wantExt  string
	}{
		{pngHeader, "image/png", ".png"},
		{[]byte("\xff\xd8\xff\xe0\x00\x10JFIF"), "image/jpeg", ".jpg"},
		{nil, defaultMime, ".bin"},
	}
	for _, tt := range tests {
		m, ext := DetectMime(tt.data)
		if m != tt.wantMime || ext != tt.wantExt {
			t.Errorf("DetectMime(%q) = %s %s, want %s %s", tt.data, m, ext, tt.wantMime, tt.wantExt)
		}
	}
	if !IsImage("image/webp") || IsImage("text/plain") {
		t.Error("IsImage mismatch")
	}
}

func TestSaveAttachment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "att")
	path, mimeType, err := SaveAttachment(dir, pngHeader)
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if mimeType != "image/png" || !strings.HasSuffix(path, ".png") {
		t.Errorf("got %s %s", path, mimeType)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, pngHeader) {
		t.Fatalf("content mismatch: %v", err)
	}
	if m, _ := DetectFileMime(path); m != "image/png" {
		t.Errorf("DetectFileMime = %s", m)
	}

	if _, _, err := SaveAttachment(dir, nil); err == nil {
		t.Error("empty data should fail")
	}
}

func TestPruneAttachments(t *testing.T) {
	dir := t.TempDir()
	oldName := timestampPrefixAt(time.Now().Add(-72*time.Hour)) + "old.png"
	newName := TimestampPrefix() + "new.png"
	for _, n := range []string{oldName, newName, "no-prefix.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := PruneAttachments(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneAttachments: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, oldName)); !os.IsNotExist(err) {
		t.Error("old file should be gone")
	}
	if _, err := os.Stat(filepath.Join(dir, newName)); err != nil {
		t.Error("new file should remain")
	}

	if n, err := PruneAttachments(filepath.Join(dir, "missing"), time.Hour); err != nil || n != 0 {
		t.Errorf("missing dir: %d %v", n, err)
	}
}
