// Package snapshot writes scheduled tar.gz archives of the font collection
// into the data directory.
package snapshot

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/storage"
)

const (
	filePrefix   = "fontshelf_snapshot_"
	fileSuffix   = ".tar.gz"
	manifestName = "manifest.json"
	timeLayout   = "20060102_150405"
)

var (
	ErrNotFound    = errors.New("snapshot: not found")
	ErrInvalidName = errors.New("snapshot: invalid name")
)

// Info describes one archive.
type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type manifestEntry struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	Name          string    `json:"name"`
	FontType      string    `json:"font_type"`
	FontFamily    string    `json:"font_family,omitempty"`
	FontSubfamily string    `json:"font_subfamily,omitempty"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}

// Manager creates, lists, prunes and restores archives.
type Manager struct {
	fs    *storage.FileSystem
	dir   string
	store *collection.Store
	keep  int
	now   func() time.Time

	// createMu serializes archive writes so each picks a free name.
	createMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	last    *Info
	lastErr error
}

// NewManager stores archives of store under dir, keeping the newest keep.
func NewManager(fs *storage.FileSystem, dir string, store *collection.Store, keep int) *Manager {
	if keep < 1 {
		keep = 1
	}
	return &Manager{
		fs:    fs,
		dir:   dir,
		store: store,
		keep:  keep,
		now:   time.Now,
	}
}

// Create writes a new archive of every font in the store.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	info, err := m.create(ctx)
	m.mu.Lock()
	if err == nil {
		m.last = &info
	}
	m.lastErr = err
	m.mu.Unlock()
	if err != nil {
		zap.L().Error("Snapshot failed", zap.Error(err))
		return Info{}, err
	}
	zap.L().Info("Snapshot created", zap.String("name", info.Name), zap.Int64("size", info.Size))
	if err := m.prune(); err != nil {
		zap.L().Warn("Failed to prune snapshots", zap.Error(err))
	}
	return info, nil
}

// archiveName returns the archive name for a creation time. Archives made
// within the same second after the first get a sequence suffix from 2.
func archiveName(created time.Time, seq int) string {
	if seq <= 1 {
		return filePrefix + created.Format(timeLayout) + fileSuffix
	}
	return filePrefix + created.Format(timeLayout) + "_" + strconv.Itoa(seq) + fileSuffix
}

// parseName is the inverse of archiveName.
func parseName(name string) (created time.Time, seq int, ok bool) {
	if !validName(name) {
		return time.Time{}, 0, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	seq = 1
	if len(stamp) > len(timeLayout) {
		rest, found := strings.CutPrefix(stamp[len(timeLayout):], "_")
		n, err := strconv.Atoi(rest)
		if !found || err != nil || n < 2 {
			return time.Time{}, 0, false
		}
		stamp, seq = stamp[:len(timeLayout)], n
	}
	created, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return time.Time{}, 0, false
	}
	return created, seq, true
}

func (m *Manager) freeName(created time.Time) (string, error) {
	for seq := 1; ; seq++ {
		name := archiveName(created, seq)
		exists, err := m.fs.Exists(filepath.Join(m.dir, name))
		if err != nil {
			return "", fmt.Errorf("failed to check archive name: %w", err)
		}
		if !exists {
			return name, nil
		}
	}
}

func (m *Manager) create(ctx context.Context) (Info, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	created := m.now().UTC()
	name, err := m.freeName(created)
	if err != nil {
		return Info{}, err
	}
	target := filepath.Join(m.dir, name)
	tmp := target + ".tmp"

	f, err := m.fs.Create(tmp)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create archive: %w", err)
	}
	if err := m.write(ctx, f, created); err != nil {
		f.Close()
		m.fs.Remove(tmp)
		return Info{}, err
	}
	if err := f.Close(); err != nil {
		m.fs.Remove(tmp)
		return Info{}, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := m.fs.Rename(tmp, target); err != nil {
		m.fs.Remove(tmp)
		return Info{}, fmt.Errorf("failed to finalise archive: %w", err)
	}
	st, err := m.fs.Stat(target)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, Size: st.Size(), CreatedAt: created}, nil
}

func (m *Manager) write(ctx context.Context, w io.Writer, created time.Time) error {
	gzWriter, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}
	tarWriter := tar.NewWriter(gzWriter)

	addFile := func(name string, data []byte) error {
		header := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: created,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return fmt.Errorf("failed to copy file data: %w", err)
		}
		return nil
	}

	rows := m.store.Rows()
	manifest := make([]manifestEntry, 0, len(rows))
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.Bytes()
		if err != nil {
			zap.L().Warn("Leaving unreadable font out of snapshot", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		ext := "bin"
		if f, err := fontdec.FormatFromFilename(r.Name); err == nil {
			ext = string(f)
		}
		file := path.Join("fonts", r.ID+"."+ext)
		if err := addFile(file, data); err != nil {
			return err
		}
		manifest = append(manifest, manifestEntry{
			ID:            r.ID,
			File:          file,
			Name:          r.Name,
			FontType:      r.FontType,
			FontFamily:    r.FontFamily,
			FontSubfamily: r.FontSubfamily,
			Checksum:      r.Checksum,
			CreatedAt:     r.CreatedAt,
		})
	}

	mdata, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := addFile(manifestName, mdata); err != nil {
		return err
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// List returns the archives, newest first.
func (m *Manager) List() ([]Info, error) {
	exists, err := m.fs.Exists(m.dir)
	if err != nil || !exists {
		return nil, err
	}
	entries, err := m.fs.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var out []Info
	seqs := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, seq, ok := parseName(e.Name())
		if !ok {
			continue
		}
		seqs[e.Name()] = seq
		out = append(out, Info{Name: e.Name(), Size: e.Size(), CreatedAt: created})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return seqs[out[i].Name] > seqs[out[j].Name]
	})
	return out, nil
}

func validName(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) &&
		!strings.ContainsAny(name, `/\`)
}

// Open opens an archive for reading.
func (m *Manager) Open(name string) (afero.File, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	f, err := m.fs.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, nil
}

// Read returns the rows stored in an archive.
func (m *Manager) Read(name string) ([]collection.Row, error) {
	f, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	files := make(map[string][]byte)
	var manifest []manifestEntry
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		if header.Name == manifestName {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}
		files[header.Name] = data
	}

	rows := make([]collection.Row, 0, len(manifest))
	for _, e := range manifest {
		data, ok := files[e.File]
		if !ok {
			return nil, fmt.Errorf("archive is missing %s", e.File)
		}
		entry := collection.NewEntry(data, e.Name, e.FontType)
		entry.FontFamily = e.FontFamily
		entry.FontSubfamily = e.FontSubfamily
		entry.CreatedAt = e.CreatedAt
		if e.Checksum != "" && e.Checksum != entry.Checksum {
			return nil, fmt.Errorf("%s: %w", e.File, collection.ErrChecksumMismatch)
		}
		rows = append(rows, collection.Row{ID: e.ID, Entry: entry})
	}
	return rows, nil
}

// Restore adds the fonts of an archive that are missing from the store and
// returns how many were added.
func (m *Manager) Restore(name string) (int, error) {
	rows, err := m.Read(name)
	if err != nil {
		return 0, err
	}
	added := 0
	err = m.store.Transaction(func(tx *collection.Tx) error {
		for _, r := range rows {
			if m.store.Has(r.ID) {
				continue
			}
			if err := tx.SetRow(r.ID, r.Entry); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	zap.L().Info("Snapshot restored", zap.String("name", name), zap.Int("added", added))
	return added, nil
}

func (m *Manager) prune() error {
	list, err := m.List()
	if err != nil {
		return err
	}
	for _, info := range list[min(m.keep, len(list)):] {
		if err := m.fs.Remove(filepath.Join(m.dir, info.Name)); err != nil {
			return err
		}
		zap.L().Debug("Snapshot pruned", zap.String("name", info.Name))
	}
	return nil
}

// Status reports the last scheduled or manual snapshot.
func (m *Manager) Status() (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.lastErr
}

// Start runs Create on a cron schedule. An empty schedule disables it.
func (m *Manager) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	c := cron.New(cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		_, _ = m.Create(ctx)
	}); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	c.Start()
	zap.L().Info("Snapshot scheduler started", zap.String("schedule", schedule), zap.Int("keep", m.keep))
	return nil
}

// Stop halts the scheduler and waits for a running snapshot.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	zap.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
