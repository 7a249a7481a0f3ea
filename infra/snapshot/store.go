// Package snapshot persists battery snapshots so a device removed from the
// simulation, or a whole run, can be resumed later.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/batsim/core/battery"
)

// Record is one persisted snapshot.
type Record struct {
	DeviceID string           `json:"device_id"`
	RunID    string           `json:"run_id,omitempty"`
	SimTime  float64          `json:"sim_time"`
	Time     time.Time        `json:"time"`
	Snapshot battery.Snapshot `json:"snapshot"`
}

// Store persists snapshot records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Latest returns the most recent record of a device.
	Latest(ctx context.Context, deviceID string) (Record, bool, error)
	// LatestAll returns the most recent record of every device.
	LatestAll(ctx context.Context) (map[string]Record, error)
	Close() error
}

// Config defines the snapshot file and its rotation.
type Config struct {
	// Path is the JSONL file. Empty disables persistence.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// Enabled reports whether a path is configured.
func (c Config) Enabled() bool { return c.Path != "" }

// Validate checks the rotation settings.
func (c Config) Validate() error {
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("snapshot rotation settings must not be negative")
	}
	return nil
}

// JSONLStore appends records to a JSONL file with size based rotation.
// Reads scan the rotated files oldest first, then the live file.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	out  *lumberjack.Logger
}

var _ Store = (*JSONLStore)(nil)

// NewJSONLStore creates the directory of cfg.Path if needed.
func NewJSONLStore(cfg Config) (*JSONLStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JSONLStore{
		path: cfg.Path,
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
	}, nil
}

// Append writes rec as one line.
func (s *JSONLStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", rec.DeviceID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(b, '\n'))
	return err
}

// Latest returns the last record written for deviceID.
func (s *JSONLStore) Latest(ctx context.Context, deviceID string) (Record, bool, error) {
	all, err := s.LatestAll(ctx)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := all[deviceID]
	return rec, ok, nil
}

// LatestAll scans every file and keeps the last record per device. Lines
// that do not decode are skipped.
func (s *JSONLStore) LatestAll(ctx context.Context) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := scanFile(f, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close closes the live file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// files lists rotated backups (name-<timestamp>.ext) in age order followed
// by the live file.
func (s *JSONLStore) files() ([]string, error) {
	ext := filepath.Ext(s.path)
	base := strings.TrimSuffix(s.path, ext)
	backups, err := filepath.Glob(base + "-*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(backups)
	if _, err := os.Stat(s.path); err == nil {
		backups = append(backups, s.path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return backups, nil
}

func scanFile(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || r.DeviceID == "" {
			continue
		}
		out[r.DeviceID] = r
	}
	return scanner.Err()
}
