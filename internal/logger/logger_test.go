package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_TeesConsoleAndJSON(t *testing.T) {
	var console, file bytes.Buffer
	l := New(zapcore.AddSync(&console), zapcore.AddSync(&file), zapcore.InfoLevel)
	l.Debug("hidden")
	l.Info("Font registered", zap.String("family", "Go"))

	if strings.Contains(console.String(), "hidden") || strings.Contains(file.String(), "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(console.String(), "Font registered") {
		t.Errorf("console output = %q", console.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v: %q", err, file.String())
	}
	if entry["msg"] != "Font registered" || entry["family"] != "Go" || entry["level"] != "INFO" {
		t.Errorf("file entry = %v", entry)
	}
}

func TestInitLogger(t *testing.T) {
	dir := t.TempDir()
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	if err := InitLogger(dir, true); err != nil {
		t.Fatal(err)
	}
	zap.L().Debug("debug enabled")
	Sync()
	data, err := os.ReadFile(filepath.Join(dir, "logs", FileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "debug enabled") {
		t.Errorf("log file = %q", data)
	}

	if _, err := GetLogWriter().Write([]byte("http: TLS handshake error\n")); err != nil {
		t.Fatal(err)
	}
}
