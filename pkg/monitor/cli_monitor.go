package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// CLIMonitor implements the Monitor interface, providing a direct
// terminal-based view of messages flowing through channels and the agent bus.
type CLIMonitor struct {
	mu     sync.Mutex
	writer io.Writer
	color  bool
}

// NewCLIMonitor creates a CLI monitor writing to stdout. ANSI colors are
// used only when stdout is a terminal.
func NewCLIMonitor() *CLIMonitor {
	m := NewWriterMonitor(os.Stdout)
	m.color = term.IsTerminal(int(os.Stdout.Fd()))
	return m
}

// NewWriterMonitor creates an uncolored CLI monitor writing to w.
func NewWriterMonitor(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

// Start starts the CLI monitor
func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "💬 CLI Monitor Active - channel and agent messages will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

// Stop stops the CLI monitor
func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage receives and displays a monitoring message
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	switch msg.MessageType {
	case MessageTypeAssistant:
		displayMsg = fmt.Sprintf("[AI] %s", msg.Content)
	case MessageTypeAgent:
		displayMsg = fmt.Sprintf("[bus/%s] %s", msg.Username, msg.Content)
	default:
		displayMsg = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.color {
		// 時間戳用灰色
		fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, displayMsg)
		return
	}
	fmt.Fprintf(m.writer, "[%s] %s\n", timestamp, displayMsg)
}
