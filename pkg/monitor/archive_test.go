package monitor

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestArchiveMonitor_StoresByDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	a := NewArchiveMonitor(path)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	day1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	a.OnMessage(MonitorMessage{Timestamp: day1.Add(time.Second), MessageType: MessageTypeAssistant, Content: "second"})
	a.OnMessage(MonitorMessage{Timestamp: day1, MessageType: MessageTypeUser, ChannelID: "web", Username: "alice", Content: "first"})
	a.OnMessage(MonitorMessage{Timestamp: day2, MessageType: MessageTypeAgent, Username: "Reasoner", Content: "next day"})

	got, err := a.Day(day1)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Fatalf("day1 = %+v", got)
	}
	if got[0].ChannelID != "web" || got[0].Username != "alice" || got[0].MessageType != MessageTypeUser {
		t.Errorf("record = %+v", got[0])
	}

	days, err := a.Days()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(days, ",") != "2024-05-01,2024-05-02" {
		t.Errorf("days = %v", days)
	}

	empty, err := a.Day(day1.Add(-24 * time.Hour))
	if err != nil || len(empty) != 0 {
		t.Errorf("empty day = %v %v", empty, err)
	}
}

func TestArchiveMonitor_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	a := NewArchiveMonitor(path)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	a.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeUser, Content: "kept"})
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}

	// closed archives drop writes and refuse reads
	a.OnMessage(MonitorMessage{Timestamp: ts, Content: "dropped"})
	if _, err := a.Day(ts); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("err = %v, want ErrArchiveClosed", err)
	}

	b := NewArchiveMonitor(path)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()
	got, _ := b.Day(ts)
	if len(got) != 1 || got[0].Content != "kept" {
		t.Errorf("reopened = %+v", got)
	}
}

type countingMonitor struct {
	started, stopped, seen int
	startErr               error
}

func (c *countingMonitor) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started++
	return nil
}
func (c *countingMonitor) Stop() error              { c.stopped++; return nil }
func (c *countingMonitor) OnMessage(MonitorMessage) { c.seen++ }

func TestMultiMonitor(t *testing.T) {
	a, b := &countingMonitor{}, &countingMonitor{}
	m := NewMultiMonitor(a, nil, b)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	m.OnMessage(MonitorMessage{Content: "x"})
	m.OnMessage(MonitorMessage{Content: "y"})
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if a.seen != 2 || b.seen != 2 || a.stopped != 1 || b.stopped != 1 {
		t.Errorf("a=%+v b=%+v", a, b)
	}

	ok, bad := &countingMonitor{}, &countingMonitor{startErr: errors.New("no disk")}
	if err := NewMultiMonitor(ok, bad).Start(); err == nil {
		t.Fatal("expected start error")
	}
	if ok.stopped != 1 {
		t.Error("started monitor should be stopped on failure")
	}
}

func TestCLIMonitor_NoColorForWriters(t *testing.T) {
	var buf bytes.Buffer
	NewWriterMonitor(&buf).OnMessage(MonitorMessage{MessageType: MessageTypeAssistant, Content: "plain"})
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("unexpected ANSI escape in %q", buf.String())
	}
}
