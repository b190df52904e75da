package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"Timestamp", "Request Type", "Name", "Response Time", "Response Length", "Response Code",
}

// Record is one row of the per-request result file.
type Record struct {
	Time    time.Time
	Method  string
	URL     string
	Elapsed time.Duration
	Bytes   int64
	Status  int
}

func (r Record) fields() []string {
	return []string{
		fmt.Sprintf("%d.%06d", r.Time.Unix(), r.Time.Nanosecond()/1000),
		r.Method,
		r.URL,
		strconv.FormatFloat(float64(r.Elapsed)/float64(time.Millisecond), 'f', 3, 64),
		strconv.FormatInt(r.Bytes, 10),
		strconv.Itoa(r.Status),
	}
}

// CSVSink appends one row per request and flushes after each row, so a
// killed run still leaves every completed request on disk.
type CSVSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	closed bool
	rows   int64
}

// OpenCSV creates (truncating) path and writes the header.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create result file: %w", err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if err := s.writeRow(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("result file %s already closed", s.f.Name())
	}
	if err := s.writeRow(r.fields()); err != nil {
		return err
	}
	s.rows++
	return nil
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write result row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Rows returns how many records were written.
func (s *CSVSink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func (s *CSVSink) Path() string { return s.f.Name() }

// Close is idempotent.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	flushErr := s.w.Error()
	if err := s.f.Close(); err != nil {
		return err
	}
	return flushErr
}
