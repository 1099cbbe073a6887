// Package tradelog appends executed-trade records to date-organized JSONL
// files and summarizes past performance from them.
package tradelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Record is one logged trade. Outcome is empty until the trade settles.
type Record struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Pair      string    `json:"pair"`
	Direction string    `json:"direction"`
	ExpiryMin int       `json:"expiry_min"`
	Size      int       `json:"size"`
	Source    string    `json:"source,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	PnL       float64   `json:"pnl,omitempty"`
}

// Outcome values recognized by Summarize.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
)

// Store is an async appender. Records are queued and written by a single
// goroutine into baseDir/<date>/trades.jsonl with lumberjack rotation.
type Store struct {
	baseDir   string
	maxSizeMB int

	writeCh chan Record
	wg      sync.WaitGroup

	closeMu sync.Mutex
	closed  bool

	mu          sync.Mutex
	currentDate string
	sink        *lumberjack.Logger
}

func NewStore(baseDir string, bufferSize, maxSizeMB int) *Store {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	s := &Store{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Record, bufferSize),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// Append queues a record for async writing, assigning an ID and timestamp
// when missing. Returns the record ID. A full buffer drops the record
// rather than block the alert path.
func (s *Store) Append(r Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	// The closed check and the send happen under one lock, so a record
	// accepted here is always drained by Close.
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return "", fmt.Errorf("trade log is closed")
	}
	select {
	case s.writeCh <- r:
		return r.ID, nil
	default:
		slog.Warn("trade log buffer full, dropping record", "pair", r.Pair)
		return "", fmt.Errorf("buffer full")
	}
}

// Close stops accepting records, flushes everything queued and closes the
// sink. Safe to call more than once.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writeCh)
	s.closeMu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		return s.sink.Close()
	}
	return nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for r := range s.writeCh {
		s.writeRecord(r)
	}
}

func (s *Store) writeRecord(r Record) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("failed to marshal trade record", "error", err, "id", r.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	date := r.At.UTC().Format("2006-01-02")
	if date != s.currentDate || s.sink == nil {
		s.rotateForDate(date)
	}
	if s.sink == nil {
		return
	}
	if _, err := s.sink.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write trade record", "error", err, "id", r.ID)
	}
}

func (s *Store) rotateForDate(date string) {
	if s.sink != nil {
		_ = s.sink.Close()
	}

	dir := filepath.Join(s.baseDir, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create trade log directory", "error", err, "dir", dir)
		s.sink = nil
		return
	}

	s.sink = &lumberjack.Logger{
		Filename:  filepath.Join(dir, "trades.jsonl"),
		MaxSize:   s.maxSizeMB,
		MaxAge:    0,
		Compress:  false,
		LocalTime: false,
	}
	s.currentDate = date
	slog.Info("opened trade log file", "dir", dir)
}

// Summary aggregates settled trade outcomes.
type Summary struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Open    int     `json:"open"`
	WinRate float64 `json:"win_rate"`
	NetPnL  float64 `json:"net_pnl"`
}

// Summarize walks every trades JSONL file under baseDir and aggregates
// outcomes. Unparseable lines are skipped with a warning.
func Summarize(baseDir string) (Summary, error) {
	var sum Summary
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			var r Record
			if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
				slog.Warn("skipping bad trade log line", "file", path, "error", err)
				continue
			}
			sum.Total++
			sum.NetPnL += r.PnL
			switch r.Outcome {
			case OutcomeWin:
				sum.Wins++
			case OutcomeLoss:
				sum.Losses++
			default:
				sum.Open++
			}
		}
		return sc.Err()
	})
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, nil
		}
		return Summary{}, err
	}
	if settled := sum.Wins + sum.Losses; settled > 0 {
		sum.WinRate = float64(sum.Wins) / float64(settled)
	}
	return sum, nil
}
