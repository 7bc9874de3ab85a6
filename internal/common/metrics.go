package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Metrics tracks progress of a batch run. It is safe for concurrent use.
type Metrics struct {
	mu           sync.Mutex
	start        time.Time
	end          time.Time
	bytes        int64
	records      int64
	totalRecords int64
	rejected     int64
	recovered    int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddRecord counts one processed record of size bytes. valid=false counts it
// as rejected.
func (m *Metrics) AddRecord(size int64, valid bool) {
	m.mu.Lock()
	m.records++
	if size > 0 {
		m.bytes += size
	}
	if !valid {
		m.rejected++
	}
	m.mu.Unlock()
}

func (m *Metrics) IncRecovered() {
	m.mu.Lock()
	m.recovered++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalRecords(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalRecords = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:     m.elapsedLocked(),
		Bytes:        m.bytes,
		Records:      m.records,
		TotalRecords: m.totalRecords,
		Rejected:     m.rejected,
		Recovered:    m.recovered,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration     time.Duration
	Bytes        int64
	Records      int64
	TotalRecords int64
	Rejected     int64
	Recovered    int64
}

func (s MetricsSnapshot) RecordsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Records) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalRecords <= 0 {
		return 0
	}
	ratio := float64(s.Records) / float64(s.TotalRecords)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Summary is the one-line report printed when a batch finishes.
func (s MetricsSnapshot) Summary() string {
	return fmt.Sprintf("%s records (%s), %s rejected, %s recovered in %s",
		humanize.Comma(s.Records), humanize.IBytes(uint64(s.Bytes)),
		humanize.Comma(s.Rejected), humanize.Comma(s.Recovered),
		s.Duration.Round(time.Millisecond))
}

func formatProgressLine(s MetricsSnapshot) string {
	rate := humanize.CommafWithDigits(s.RecordsPerSecond(), 1)
	if s.TotalRecords > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s records) %s rec/s",
			pct, humanize.Comma(s.Records), humanize.Comma(s.TotalRecords), rate)
	}
	return fmt.Sprintf("Processed: %s records %s rec/s", humanize.Comma(s.Records), rate)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
