package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileStore keeps each record in <dir>/<key>.json.
type FileStore struct {
	dir string
	log zerolog.Logger

	// write is replaced in tests to fail partway through a record.
	write func(w io.Writer, data []byte) (int, error)
}

// NewFileStore does not touch the filesystem; the directory is created on
// first write.
func NewFileStore(dir string, log zerolog.Logger) *FileStore {
	return &FileStore{
		dir: dir,
		log: log.With().Str("component", "filestore").Str("dir", dir).Logger(),
		write: func(w io.Writer, data []byte) (int, error) {
			return w.Write(data)
		},
	}
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat run record: %w", err)
	}
	return true, nil
}

func (s *FileStore) Load(ctx context.Context, key string) (RunRecord, error) {
	p, err := s.path(key)
	if err != nil {
		return RunRecord{}, err
	}
	return readRecord(p, key)
}

func readRecord(path, key string) (RunRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return RunRecord{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run record: %w", err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// Save writes through a temp file and rename so readers never see a
// partial record.
func (s *FileStore) Save(ctx context.Context, rec RunRecord) error {
	p, err := s.path(rec.IdempotencyKey)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.IdempotencyKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := s.write(tmp, append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename run record: %w", err)
	}

	s.log.Debug().Str("key", rec.IdempotencyKey).Msg("run record saved")
	return nil
}

// Create claims the key with an exclusive create.
func (s *FileStore) Create(ctx context.Context, rec RunRecord) error {
	p, err := s.path(rec.IdempotencyKey)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %q", ErrExists, rec.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	// a half-written record would hold the key and break List
	if _, err := s.write(f, append(data, '\n')); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("write run record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("close run record: %w", err)
	}

	s.log.Debug().Str("key", rec.IdempotencyKey).Msg("run record created")
	return nil
}

// List returns every record, newest first. A missing directory is an
// empty store.
func (s *FileStore) List(ctx context.Context) ([]RunRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []RunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run dir: %w", err)
	}

	recs := make([]RunRecord, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sortNewestFirst(recs)
	return recs, nil
}

func (s *FileStore) Close() error { return nil }
