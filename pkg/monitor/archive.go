package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrArchiveClosed is returned by reads on a stopped archive.
var ErrArchiveClosed = errors.New("archive is not open")

// ArchiveMonitor appends every monitored message to a BoltDB file, one
// bucket per day ("2006-01-02"). Keys are the nanosecond timestamp plus a
// sequence number so entries sort by time. The archive is write-only from
// the chat's point of view; it is never replayed into a conversation.
type ArchiveMonitor struct {
	path string
	db   *bolt.DB
	seq  atomic.Uint32
	mu   sync.RWMutex
}

// archiveRecord is the stored JSON form of a MonitorMessage.
type archiveRecord struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Username  string    `json:"user,omitempty"`
	Content   string    `json:"content"`
}

func NewArchiveMonitor(path string) *ArchiveMonitor {
	return &ArchiveMonitor{path: path}
}

// Start opens (or creates) the database file.
func (a *ArchiveMonitor) Start() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	db, err := bolt.Open(a.path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("open archive %s: %w", a.path, err)
	}

	a.mu.Lock()
	a.db = db
	a.mu.Unlock()
	slog.Info("Message archive opened", "path", a.path)
	return nil
}

func (a *ArchiveMonitor) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// OnMessage stores msg. Failures are logged; monitoring never blocks chat.
func (a *ArchiveMonitor) OnMessage(msg MonitorMessage) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	value, err := json.Marshal(archiveRecord{
		Timestamp: ts,
		Type:      msg.MessageType,
		Channel:   msg.ChannelID,
		Username:  msg.Username,
		Content:   msg.Content,
	})
	if err != nil {
		slog.Error("Failed to encode archive record", "error", err)
		return
	}

	var key [12]byte
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint32(key[8:], a.seq.Add(1))

	err = a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ts.Format(time.DateOnly)))
		if err != nil {
			return err
		}
		return b.Put(key[:], value)
	})
	if err != nil {
		slog.Error("Failed to archive message", "error", err)
	}
}

// Day returns the archived messages of one day in time order.
func (a *ArchiveMonitor) Day(day time.Time) ([]MonitorMessage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, ErrArchiveClosed
	}

	var out []MonitorMessage
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(day.Format(time.DateOnly)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec archiveRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// 壞資料略過
				return nil
			}
			out = append(out, MonitorMessage{
				Timestamp:   rec.Timestamp,
				MessageType: rec.Type,
				ChannelID:   rec.Channel,
				Username:    rec.Username,
				Content:     rec.Content,
			})
			return nil
		})
	})
	return out, err
}

// Days lists the archived days, oldest first.
func (a *ArchiveMonitor) Days() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, ErrArchiveClosed
	}
	var days []string
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			days = append(days, string(name))
			return nil
		})
	})
	return days, err
}
