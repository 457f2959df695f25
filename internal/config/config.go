// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Config holds every setting. Zero values are replaced by defaults in Load.
type Config struct {
	DataDir          string
	Port             string
	Debug            bool
	FontRoot         string
	ScanExcludes     []string
	MaxFontSize      int64
	SnapshotSchedule string
	SnapshotKeep     int
	UnnamedFirst     bool
	Collation        language.Tag
	SaveDelay        time.Duration
	PreviewIdle      time.Duration
}

// Defaults.
const (
	DefaultDataDir          = "data"
	DefaultPort             = "8080"
	DefaultMaxFontSizeMB    = 30
	DefaultSnapshotSchedule = "@daily"
	DefaultSnapshotKeep     = 7
	DefaultSaveDelay        = 200 * time.Millisecond
	DefaultPreviewIdle      = 10 * time.Minute
)

// DatabasePath returns the SQLite file inside the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fontshelf.db")
}

// SnapshotDir returns the directory holding collection archives.
func (c Config) SnapshotDir() string {
	return filepath.Join(c.DataDir, "snapshots")
}

// ScanEnabled reports whether a font folder is configured for scanning.
func (c Config) ScanEnabled() bool {
	return c.FontRoot != ""
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads the configuration through lookup, which has the
// signature of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	c := Config{
		DataDir:      get("FONTSHELF_DATA_DIR", DefaultDataDir),
		Port:         get("PORT", DefaultPort),
		Debug:        get("DEBUG", "") != "",
		FontRoot:     get("FONTSHELF_FONT_ROOT", ""),
		SnapshotKeep: DefaultSnapshotKeep,
		SaveDelay:    DefaultSaveDelay,
		PreviewIdle:  DefaultPreviewIdle,
	}

	if v, ok := lookup("FONTSHELF_SNAPSHOT_SCHEDULE"); ok {
		c.SnapshotSchedule = strings.TrimSpace(v)
	} else {
		c.SnapshotSchedule = DefaultSnapshotSchedule
	}

	for _, p := range strings.Split(get("FONTSHELF_SCAN_EXCLUDE", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.ScanExcludes = append(c.ScanExcludes, p)
		}
	}

	mb, err := strconv.Atoi(get("FONTSHELF_MAX_FONT_SIZE_MB", strconv.Itoa(DefaultMaxFontSizeMB)))
	if err != nil || mb <= 0 {
		return Config{}, fmt.Errorf("FONTSHELF_MAX_FONT_SIZE_MB: want a positive integer")
	}
	c.MaxFontSize = int64(mb) << 20

	if v := get("FONTSHELF_SNAPSHOT_KEEP", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("FONTSHELF_SNAPSHOT_KEEP: want a positive integer")
		}
		c.SnapshotKeep = n
	}

	if v := get("FONTSHELF_UNNAMED_FIRST", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("FONTSHELF_UNNAMED_FIRST: %w", err)
		}
		c.UnnamedFirst = b
	}

	tag, err := language.Parse(get("FONTSHELF_COLLATION", "und"))
	if err != nil {
		return Config{}, fmt.Errorf("FONTSHELF_COLLATION: %w", err)
	}
	c.Collation = tag

	if v := get("FONTSHELF_SAVE_DELAY", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("FONTSHELF_SAVE_DELAY: want a non-negative duration")
		}
		c.SaveDelay = d
	}

	if v := get("FONTSHELF_PREVIEW_IDLE", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("FONTSHELF_PREVIEW_IDLE: want a positive duration")
		}
		c.PreviewIdle = d
	}

	return c, nil
}
