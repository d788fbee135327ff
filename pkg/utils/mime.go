package utils

import (
	"mime"
	"net/http"
	"os"
	"strings"
)

const defaultMime = "application/octet-stream"

// 常見圖片格式固定副檔名，避免 mime 表回傳 .jfif / .jpe
var preferredExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	defaultMime:  ".bin",
}

// DetectFileMime sniffs the first 512 bytes of a file.
func DetectFileMime(path string) (mimeType, ext string) {
	f, err := os.Open(path)
	if err != nil {
		return defaultMime, ".bin"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return DetectMime(buf[:n])
}

// DetectMime sniffs data and returns its MIME type and a file extension.
func DetectMime(data []byte) (mimeType, ext string) {
	mimeType = defaultMime
	if len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	return mimeType, ExtForMime(mimeType)
}

// ExtForMime maps a MIME type to an extension, ".bin" when unknown.
func ExtForMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(base)
	if ext, ok := preferredExt[base]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

// IsImage reports whether mimeType is an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
