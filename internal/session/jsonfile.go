package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const (
	backupPrefix     = "conversation_history_"
	backupTimeLayout = "20060102_150405"
)

// BackupOptions controls the rotating copies taken before each file flush.
type BackupOptions struct {
	Enabled  bool
	Dir      string
	MaxFiles int
}

// FileBackend stores every channel history in one JSON document:
//
//	{ "<channelId>": [ {"role":"user","content":"…","timestamp":"…"}, … ], … }
type FileBackend struct {
	path   string
	backup BackupOptions
	now    func() time.Time
}

// NewFileBackend creates a FileBackend writing to path. The parent and backup
// directories are created if necessary.
func NewFileBackend(path string, backup BackupOptions) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	if backup.Enabled {
		if err := os.MkdirAll(backup.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
	}
	return &FileBackend{path: path, backup: backup, now: time.Now}, nil
}

func (f *FileBackend) Path() string { return f.path }

// LoadAll reads the history file. A missing file yields an empty map.
func (f *FileBackend) LoadAll(_ context.Context) (map[string]schema.Messages, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("session: history file not found, will be created on first save", "path", f.path)
			return map[string]schema.Messages{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	out := map[string]schema.Messages{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	for id, msgs := range out {
		for _, m := range msgs {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("channel %s: %w: %q", id, ErrInvalidRole, m.Role)
			}
		}
	}
	return out, nil
}

// SaveAll overwrites the history file via write-to-temp and rename. When
// backups are enabled the previous file is copied aside first, and old
// copies beyond MaxFiles are pruned after the write succeeds. Backup
// failures are logged and never fail the save.
func (f *FileBackend) SaveAll(_ context.Context, data map[string]schema.Messages) error {
	if f.backup.Enabled {
		if _, err := os.Stat(f.path); err == nil {
			if err := f.createBackup(); err != nil {
				slog.Error("session: backup failed", "err", err)
			}
		}
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	buf = append(buf, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}

	if f.backup.Enabled {
		if err := f.pruneBackups(); err != nil {
			slog.Error("session: backup cleanup failed", "err", err)
		}
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) createBackup() error {
	name := backupPrefix + f.now().Format(backupTimeLayout) + ".json"
	dest := filepath.Join(f.backup.Dir, name)

	src, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	slog.Debug("session: backup created", "path", dest)
	return nil
}

// Backups lists existing backup files, newest first.
func (f *FileBackend) Backups() ([]string, error) {
	entries, err := os.ReadDir(f.backup.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (f *FileBackend) pruneBackups() error {
	if f.backup.MaxFiles <= 0 {
		return nil
	}
	names, err := f.Backups()
	if err != nil {
		return err
	}
	if len(names) <= f.backup.MaxFiles {
		return nil
	}
	for _, name := range names[f.backup.MaxFiles:] {
		if err := os.Remove(filepath.Join(f.backup.Dir, name)); err != nil {
			return err
		}
	}
	slog.Info("session: backups pruned", "kept", f.backup.MaxFiles, "total", len(names))
	return nil
}
