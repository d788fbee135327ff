package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var requestCounter uint32

// NewRequestID returns a 24-hex-char id: 4 bytes unix seconds, 5 random
// bytes and a 3-byte counter. Ids sort by creation second.
func NewRequestID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&requestCounter, 1) & 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// TimestampPrefix returns the current time as 8 hex chars plus "_", e.g. "65cfda3f_".
func TimestampPrefix() string {
	return timestampPrefixAt(time.Now())
}

func timestampPrefixAt(t time.Time) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t.Unix()))
	return hex.EncodeToString(b[:]) + "_"
}

// CreatedAt decodes the leading 8-hex-char timestamp of a request id or a
// prefixed file name.
func CreatedAt(name string) (time.Time, error) {
	if len(name) < 8 {
		return time.Time{}, fmt.Errorf("name too short for timestamp: %q", name)
	}
	b, err := hex.DecodeString(name[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp prefix %q: %w", name[:8], err)
	}
	return time.Unix(int64(binary.BigEndian.Uint32(b)), 0), nil
}

// OlderThan reports whether name was created more than d ago. Names without
// a valid prefix are never considered old.
func OlderThan(name string, d time.Duration) bool {
	t, err := CreatedAt(name)
	if err != nil {
		return false
	}
	return time.Since(t) > d
}
