package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

const (
	defaultLatestFile  = "signals_latest.json"
	defaultHistoryFile = "signals_history.jsonl"
	defaultScanLimit   = 5000
	tailChunk          = 64 << 10
)

// FileStoreConfig locates the store files.
type FileStoreConfig struct {
	DataDir     string
	LatestFile  string
	HistoryFile string
	ScanLimit   int
}

// FileSignalStore keeps the latest snapshot as a JSON document and the history
// as JSON lines, both under one directory.
type FileSignalStore struct {
	mu          sync.Mutex
	dir         string
	latestPath  string
	historyPath string
	scanLimit   int
	now         func() time.Time
	last        time.Time
	l           *applogger.Logger
}

// NewFileSignalStore creates the store. The directory is created lazily on
// the first save.
func NewFileSignalStore(cfg FileStoreConfig, l *applogger.Logger) *FileSignalStore {
	if cfg.LatestFile == "" {
		cfg.LatestFile = defaultLatestFile
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = defaultHistoryFile
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaultScanLimit
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &FileSignalStore{
		dir:         cfg.DataDir,
		latestPath:  filepath.Join(cfg.DataDir, cfg.LatestFile),
		historyPath: filepath.Join(cfg.DataDir, cfg.HistoryFile),
		scanLimit:   cfg.ScanLimit,
		now:         time.Now,
		l:           l.Component("signal_store"),
	}
}

// Save overwrites the latest snapshot then appends one history line per
// signal. The two writes are not transactional: a failed append leaves the
// new snapshot in place.
func (s *FileSignalStore) Save(ctx context.Context, signals []models.Signal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &models.PersistenceError{Op: "mkdir", Path: s.dir, Err: err}
	}

	generatedAt := util.FormatTimestamp(s.nextStamp())
	if signals == nil {
		signals = []models.Signal{}
	}

	snap, err := json.MarshalIndent(models.LatestSnapshot{GeneratedAt: generatedAt, Signals: signals}, "", "  ")
	if err != nil {
		return "", &models.PersistenceError{Op: "encode", Path: s.latestPath, Err: err}
	}
	if err := writeFileAtomic(s.latestPath, snap); err != nil {
		return "", &models.PersistenceError{Op: "write", Path: s.latestPath, Err: err}
	}

	var buf bytes.Buffer
	for _, sig := range signals {
		line, err := json.Marshal(models.HistoryRecord{GeneratedAt: generatedAt, Signal: sig})
		if err != nil {
			return "", &models.PersistenceError{Op: "encode", Path: s.historyPath, Err: err}
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if buf.Len() > 0 {
		if err := appendFile(s.historyPath, buf.Bytes()); err != nil {
			s.l.Error("history append failed after snapshot write",
				applogger.String("path", s.historyPath),
				applogger.String("generated_at", generatedAt),
				applogger.Error(err),
			)
			return "", &models.PersistenceError{Op: "append", Path: s.historyPath, Err: err}
		}
	}

	s.l.Debug("signals saved",
		applogger.String("generated_at", generatedAt),
		applogger.Int("count", len(signals)),
	)
	return generatedAt, nil
}

// ReadLatest returns the last saved snapshot, or the epoch snapshot when
// nothing was saved yet.
func (s *FileSignalStore) ReadLatest(ctx context.Context) (models.LatestSnapshot, error) {
	b, err := s.readLatestFile(ctx)
	if err != nil || b == nil {
		return models.EmptySnapshot(), err
	}
	var snap models.LatestSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return models.EmptySnapshot(), &models.PersistenceError{Op: "decode", Path: s.latestPath, Err: err}
	}
	if snap.GeneratedAt == "" {
		snap.GeneratedAt = models.EpochTimestamp
	}
	if snap.Signals == nil {
		snap.Signals = []models.Signal{}
	}
	return snap, nil
}

type rawSnapshot struct {
	GeneratedAt string            `json:"generated_at"`
	Signals     []json.RawMessage `json:"signals"`
}

// ReadLatestNormalized reads the snapshot through the tolerant record parser.
func (s *FileSignalStore) ReadLatestNormalized(ctx context.Context) (models.SignalsResponse, error) {
	empty := models.SignalsResponse{GeneratedAt: models.EpochTimestamp, Signals: []models.NormalizedSignal{}}
	b, err := s.readLatestFile(ctx)
	if err != nil || b == nil {
		return empty, err
	}
	var raw rawSnapshot
	if err := json.Unmarshal(b, &raw); err != nil {
		return empty, &models.PersistenceError{Op: "decode", Path: s.latestPath, Err: err}
	}
	if raw.GeneratedAt == "" {
		raw.GeneratedAt = models.EpochTimestamp
	}
	return models.SignalsResponse{
		GeneratedAt: raw.GeneratedAt,
		Signals:     models.NormalizeSnapshot(raw.GeneratedAt, raw.Signals),
	}, nil
}

// ReadHistory scans the newest lines of the history log and returns up to
// limit records newest-first. An empty symbol matches every record.
func (s *FileSignalStore) ReadHistory(ctx context.Context, symbol string, limit int) ([]models.NormalizedSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.NormalizedSignal{}
	if limit <= 0 {
		return out, nil
	}

	lines, err := tailLines(s.historyPath, s.scanLimit)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "read", Path: s.historyPath, Err: err}
	}

	skipped := 0
	for i := len(lines) - 1; i >= 0 && len(out) < limit; i-- {
		rec, ok := models.ParseSignalRecord(lines[i])
		if !ok {
			skipped++
			continue
		}
		if symbol != "" && !strings.EqualFold(rec.Symbol.TakeOr(""), symbol) {
			continue
		}
		out = append(out, rec.Normalize(""))
	}
	if skipped > 0 {
		s.l.Warn("skipped malformed history lines", applogger.Int("count", skipped))
	}
	return out, nil
}

// nextStamp returns the save time at millisecond precision, bumped past the
// previous save so generated_at and synthetic ids never repeat. Callers hold mu.
func (s *FileSignalStore) nextStamp() time.Time {
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

func (s *FileSignalStore) readLatestFile(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.latestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "read", Path: s.latestPath, Err: err}
	}
	return b, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tailLines returns at most n complete non-empty lines from the end of path,
// oldest first, reading backwards in chunks.
func tailLines(path string, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var (
		pos  = st.Size()
		data []byte
	)
	for pos > 0 && bytes.Count(data, []byte{'\n'}) <= n {
		size := int64(tailChunk)
		if size > pos {
			size = pos
		}
		pos -= size
		chunk := make([]byte, size)
		if _, err := f.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return nil, err
		}
		data = append(chunk, data...)
	}

	parts := bytes.Split(data, []byte{'\n'})
	if pos > 0 && len(parts) > 0 {
		// first part may be a partial line
		parts = parts[1:]
	}
	lines := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p = bytes.TrimSpace(p); len(p) > 0 {
			lines = append(lines, p)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

var _ domrepo.SignalStore = (*FileSignalStore)(nil)
