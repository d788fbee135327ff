package llm

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DebugRoot is the directory raw stream dumps are written under:
// debug/chunks/[<request id>/]<provider>/<time>.log
var DebugRoot = filepath.Join("debug", "chunks")

// ChunkDump records the raw chunks of one stream, one numbered line per
// chunk. A nil *ChunkDump is valid and discards everything, so providers
// can call it unconditionally.
type ChunkDump struct {
	file *os.File
	w    *bufio.Writer
	name string
	seq  int
}

// NewChunkDump opens a dump file when enabled. It returns nil when
// disabled or when the file cannot be created.
func NewChunkDump(ctx context.Context, provider string, enabled bool) *ChunkDump {
	if !enabled {
		return nil
	}

	dir := filepath.Join(DebugRoot, provider)
	if id, ok := ctx.Value(DebugDirContextKey).(string); ok && id != "" {
		dir = filepath.Join(DebugRoot, id, provider)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create chunk dump directory", "dir", dir, "error", err)
		return nil
	}

	name := filepath.Join(dir, time.Now().Format("20060102_150405.000")+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open chunk dump", "file", name, "error", err)
		return nil
	}

	slog.Debug("Dumping raw chunks", "provider", provider, "file", name)
	return &ChunkDump{file: f, w: bufio.NewWriter(f), name: name}
}

// Raw records one chunk as received.
func (d *ChunkDump) Raw(s string) {
	if d == nil || d.file == nil {
		return
	}
	d.seq++
	fmt.Fprintf(d.w, "%04d %s\n", d.seq, s)
}

// JSON records one decoded chunk re-encoded as JSON.
func (d *ChunkDump) JSON(v any) {
	if d == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal chunk for dump", "error", err)
		return
	}
	d.Raw(string(data))
}

// Path is the dump file, or "" for a nil dump.
func (d *ChunkDump) Path() string {
	if d == nil {
		return ""
	}
	return d.name
}

// Close flushes and closes the file.
func (d *ChunkDump) Close() {
	if d == nil || d.file == nil {
		return
	}
	if err := d.w.Flush(); err != nil {
		slog.Warn("Failed to flush chunk dump", "error", err)
	}
	d.file.Close()
	d.file = nil
}
