package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"legmirror/pkg/logger"
)

const snapshotVersion = 1

// Status is the furthest stage a unit reached.
type Status string

const (
	StatusFetched     Status = "fetched"
	StatusTransformed Status = "transformed"
	StatusUploaded    Status = "uploaded"
	StatusFailed      Status = "failed"
)

// Record is the progress entry for one work unit.
type Record struct {
	Key         string    `json:"-"`
	Status      Status    `json:"status"`
	ArtifactIDs []string  `json:"artifact_ids,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Attempts    int       `json:"attempts,omitempty"`
	Error       string    `json:"error,omitempty"`
	// Permanent failures are never retried by later runs.
	Permanent bool `json:"permanent,omitempty"`
}

type snapshot struct {
	Version   int               `json:"version"`
	Source    string            `json:"source,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
	Units     map[string]Record `json:"units"`
}

// Stats counts records per status.
type Stats struct {
	Total       int
	Fetched     int
	Transformed int
	Uploaded    int
	Failed      int
	Permanent   int
}

// Store is the durable map from unit key to Record. A Store has a single
// writer; concurrent goroutines in one process may share it.
type Store struct {
	path       string
	source     string
	skipFailed bool
	logger     logger.Logger
	now        func() time.Time

	// beforeRename runs between the temp write and the rename.
	beforeRename func() error

	mu      sync.RWMutex
	records map[string]Record
}

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSource stamps the snapshot with the source name.
func WithSource(name string) Option {
	return func(s *Store) { s.source = name }
}

// WithSkipFailed makes every failed record count as done.
func WithSkipFailed(skip bool) Option {
	return func(s *Store) { s.skipFailed = skip }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open returns a Store backed by path. Nothing is read until Load.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		logger:  logger.GetLogger(),
		now:     time.Now,
		records: make(map[string]Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PathFor returns the checkpoint file for source under dataDir, creating the
// checkpoints directory. An empty dataDir selects the platform data directory.
func PathFor(dataDir, source string) (string, error) {
	if dataDir == "" {
		dir, err := DataDirectory()
		if err != nil {
			return "", fmt.Errorf("failed to get data directory: %w", err)
		}
		dataDir = dir
	}

	dir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return filepath.Join(dir, source+".checkpoint.json"), nil
}

func (s *Store) Path() string { return s.path }

// Load reads the snapshot into memory. A missing file yields an empty map.
// An undecodable file is moved aside to <path>.corrupt and also yields an
// empty map. Any other read error is returned.
func (s *Store) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.replace(map[string]Record{})
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.path, err)
	}

	records, err := decode(data)
	if err != nil {
		corrupt := s.path + ".corrupt"
		if rerr := os.Rename(s.path, corrupt); rerr != nil {
			return nil, fmt.Errorf("checkpoint %s is corrupt and could not be moved aside: %w", s.path, rerr)
		}
		s.logger.WarnWithFields("checkpoint unreadable, starting empty", map[string]interface{}{
			"path":     s.path,
			"moved_to": corrupt,
			"error":    err.Error(),
		})
		records = map[string]Record{}
	}

	s.replace(records)
	s.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"path":  s.path,
		"units": len(records),
	})
	return s.copyRecords(), nil
}

func decode(data []byte) (map[string]Record, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err == nil && snap.Units != nil {
		for key, rec := range snap.Units {
			rec.Key = key
			snap.Units[key] = rec
		}
		return snap.Units, nil
	}

	// processed_documents.json from older mirrors: a bare list of keys.
	var legacy []string
	if err := json.Unmarshal(data, &legacy); err == nil {
		records := make(map[string]Record, len(legacy))
		for _, key := range legacy {
			records[key] = Record{Key: key, Status: StatusUploaded}
		}
		return records, nil
	}

	var empty snapshot
	if err := json.Unmarshal(data, &empty); err != nil {
		return nil, err
	}
	if empty.Version == 0 {
		return nil, errors.New("not a checkpoint snapshot")
	}
	return map[string]Record{}, nil
}

func (s *Store) replace(records map[string]Record) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

func (s *Store) copyRecords() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// IsDone reports whether key needs no further work: it was uploaded, or it
// failed and is marked permanent (or the store skips all failures).
func (s *Store) IsDone(key string) bool {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	switch rec.Status {
	case StatusUploaded:
		return true
	case StatusFailed:
		return rec.Permanent || s.skipFailed
	default:
		return false
	}
}

func (s *Store) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Records returns every record sorted by key.
func (s *Store) Records() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Record) int {
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.records)}
	for _, rec := range s.records {
		switch rec.Status {
		case StatusFetched:
			st.Fetched++
		case StatusTransformed:
			st.Transformed++
		case StatusUploaded:
			st.Uploaded++
		case StatusFailed:
			st.Failed++
			if rec.Permanent {
				st.Permanent++
			}
		}
	}
	return st
}

// Commit merges records into the snapshot and persists it. The in-memory
// view only changes once the new snapshot is on disk.
func (s *Store) Commit(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Record, len(s.records)+len(records))
	for k, v := range s.records {
		next[k] = v
	}
	for _, rec := range records {
		if rec.Key == "" {
			return errors.New("checkpoint record without key")
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = s.now()
		}
		next[rec.Key] = rec
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.records = next

	s.logger.DebugWithFields("checkpoint committed", map[string]interface{}{
		"path":    s.path,
		"records": len(records),
		"units":   len(next),
	})
	return nil
}

// write persists records via temp file, fsync and rename. Callers hold mu.
func (s *Store) write(records map[string]Record) error {
	data, err := json.MarshalIndent(snapshot{
		Version:   snapshotVersion,
		Source:    s.source,
		UpdatedAt: s.now(),
		Units:     records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if s.beforeRename != nil {
		if err := s.beforeRename(); err != nil {
			return err
		}
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	syncDir(filepath.Dir(s.path))
	return nil
}

// syncDir flushes the rename. Directories cannot be fsynced on Windows.
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// Reset deletes the given keys and persists the result. It returns how many
// records were removed.
func (s *Store) Reset(keys ...string) (int, error) {
	return s.resetWhere(func(rec Record) bool {
		return slices.Contains(keys, rec.Key)
	})
}

// ResetFailed deletes every failed record, permanent ones included.
func (s *Store) ResetFailed() (int, error) {
	return s.resetWhere(func(rec Record) bool {
		return rec.Status == StatusFailed
	})
}

func (s *Store) resetWhere(match func(Record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Record, len(s.records))
	removed := 0
	for k, v := range s.records {
		if match(v) {
			removed++
			continue
		}
		next[k] = v
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(next); err != nil {
		return 0, err
	}
	s.records = next

	s.logger.InfoWithFields("checkpoint records reset", map[string]interface{}{
		"path":    s.path,
		"removed": removed,
	})
	return removed, nil
}

// Delete removes the checkpoint file and forgets all records.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	s.records = make(map[string]Record)
	s.logger.InfoWithFields("checkpoint deleted", map[string]interface{}{"path": s.path})
	return nil
}

// Exists checks if a checkpoint file exists
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Backup copies the current snapshot to <path>.backup.
func (s *Store) Backup() error {
	src, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}
	return dst.Sync()
}

// DataDirectory returns the per-user data directory for legmirror.
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "legmirror")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "legmirror")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "legmirror")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "legmirror")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".legmirror")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
