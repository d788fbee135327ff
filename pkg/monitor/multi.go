package monitor

import "errors"

// MultiMonitor fans every message out to several monitors.
type MultiMonitor struct {
	monitors []Monitor
}

// NewMultiMonitor skips nil entries.
func NewMultiMonitor(monitors ...Monitor) *MultiMonitor {
	m := &MultiMonitor{}
	for _, mon := range monitors {
		if mon != nil {
			m.monitors = append(m.monitors, mon)
		}
	}
	return m
}

// Start starts every monitor and stops the ones already started if one fails.
func (m *MultiMonitor) Start() error {
	for i, mon := range m.monitors {
		if err := mon.Start(); err != nil {
			for _, started := range m.monitors[:i] {
				_ = started.Stop()
			}
			return err
		}
	}
	return nil
}

func (m *MultiMonitor) Stop() error {
	var errs []error
	for _, mon := range m.monitors {
		if err := mon.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiMonitor) OnMessage(msg MonitorMessage) {
	for _, mon := range m.monitors {
		mon.OnMessage(msg)
	}
}
