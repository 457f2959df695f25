package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	c, err := FromLookup(env(nil))
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		DataDir:          "data",
		Port:             "8080",
		MaxFontSize:      30 << 20,
		SnapshotSchedule: "@daily",
		SnapshotKeep:     7,
		Collation:        language.Und,
		SaveDelay:        200 * time.Millisecond,
		PreviewIdle:      10 * time.Minute,
	}
	if diff := cmp.Diff(want, c, cmp.Comparer(func(a, b language.Tag) bool { return a.String() == b.String() })); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if c.ScanEnabled() {
		t.Error("ScanEnabled() = true without a font root")
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	c, err := FromLookup(env(map[string]string{
		"FONTSHELF_DATA_DIR":          "/var/lib/fontshelf",
		"PORT":                        "9000",
		"DEBUG":                       "1",
		"FONTSHELF_FONT_ROOT":         "/usr/share/fonts",
		"FONTSHELF_SCAN_EXCLUDE":      "**/.*, **/node_modules ,",
		"FONTSHELF_MAX_FONT_SIZE_MB":  "5",
		"FONTSHELF_SNAPSHOT_SCHEDULE": "",
		"FONTSHELF_SNAPSHOT_KEEP":     "3",
		"FONTSHELF_UNNAMED_FIRST":     "true",
		"FONTSHELF_COLLATION":         "sv",
		"FONTSHELF_SAVE_DELAY":        "1s",
		"FONTSHELF_PREVIEW_IDLE":      "90s",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug || c.Port != "9000" || !c.ScanEnabled() || !c.UnnamedFirst {
		t.Errorf("config = %+v", c)
	}
	if diff := cmp.Diff([]string{"**/.*", "**/node_modules"}, c.ScanExcludes); diff != "" {
		t.Errorf("ScanExcludes mismatch (-want +got):\n%s", diff)
	}
	if c.MaxFontSize != 5<<20 || c.SnapshotKeep != 3 || c.SnapshotSchedule != "" || c.SaveDelay != time.Second || c.PreviewIdle != 90*time.Second {
		t.Errorf("config = %+v", c)
	}
	if c.Collation.String() != "sv" {
		t.Errorf("Collation = %v, want sv", c.Collation)
	}
	if c.DatabasePath() != "/var/lib/fontshelf/fontshelf.db" {
		t.Errorf("DatabasePath() = %q", c.DatabasePath())
	}
}

func TestFromLookup_Invalid(t *testing.T) {
	for _, kv := range [][2]string{
		{"FONTSHELF_MAX_FONT_SIZE_MB", "big"},
		{"FONTSHELF_MAX_FONT_SIZE_MB", "0"},
		{"FONTSHELF_SNAPSHOT_KEEP", "-1"},
		{"FONTSHELF_UNNAMED_FIRST", "maybe"},
		{"FONTSHELF_COLLATION", "not a tag!"},
		{"FONTSHELF_SAVE_DELAY", "soon"},
		{"FONTSHELF_PREVIEW_IDLE", "0s"},
	} {
		if _, err := FromLookup(env(map[string]string{kv[0]: kv[1]})); err == nil {
			t.Errorf("%s=%q accepted", kv[0], kv[1])
		}
	}
}
