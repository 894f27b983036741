package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChampionEntry records the best agent of one generation.
type ChampionEntry struct {
	Generation int             `json:"generation"`
	RoundID    string          `json:"round_id"`
	Agent      int             `json:"agent"`
	Fitness    float64         `json:"fitness"`
	Score      int             `json:"score"`
	Ticks      int             `json:"ticks"`
	Params     json.RawMessage `json:"params"`
	WrittenAt  time.Time       `json:"written_at"`
}

// ChampionLog is an append-only JSONL file with one ChampionEntry per line.
//
// Existing entries are loaded on open. Lines that fail to decode are skipped,
// so a crash mid-append only loses the torn final line.
type ChampionLog struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	entries []ChampionEntry
	skipped int
	torn    bool
}

func OpenChampionLog(path string) (*ChampionLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	entries, skipped, torn, err := readChampionFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &ChampionLog{
		path:    path,
		file:    file,
		entries: entries,
		skipped: skipped,
		torn:    torn,
	}, nil
}

// ReadChampionLog loads the entries of a log without opening it for append.
// A missing file reads as empty.
func ReadChampionLog(path string) ([]ChampionEntry, error) {
	entries, _, _, err := readChampionFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func readChampionFile(path string) (entries []ChampionEntry, skipped int, torn bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, err
	}
	torn = len(data) > 0 && data[len(data)-1] != '\n'
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e ChampionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, torn, scanner.Err()
}

func (l *ChampionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *ChampionLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Skipped reports how many undecodable lines were ignored on open.
func (l *ChampionLog) Skipped() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skipped
}

// Latest returns the most recently appended entry.
func (l *ChampionLog) Latest() (ChampionEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return ChampionEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func (l *ChampionLog) Entries() []ChampionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ChampionEntry(nil), l.entries...)
}

// Append writes e as one line and syncs. A torn previous line is terminated
// first so the new entry starts on its own line.
func (l *ChampionLog) Append(e ChampionEntry) error {
	if len(e.Params) == 0 {
		return fmt.Errorf("champion entry has no params")
	}
	if e.WrittenAt.IsZero() {
		e.WrittenAt = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode champion: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("log file is closed")
	}
	if l.torn {
		if _, err := l.file.WriteString("\n"); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		l.torn = false
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}

	l.entries = append(l.entries, e)
	return nil
}

// PickChampion returns the entry for generation gen, or the latest entry
// when gen < 0. If a generation was logged twice the later line wins.
func PickChampion(entries []ChampionEntry, gen int) (ChampionEntry, bool) {
	if len(entries) == 0 {
		return ChampionEntry{}, false
	}
	if gen < 0 {
		return entries[len(entries)-1], true
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Generation == gen {
			return entries[i], true
		}
	}
	return ChampionEntry{}, false
}
