package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the active log file inside <data>/logs.
const FileName = "fontshelf.log"

var Logger *zap.Logger

// InitLogger installs a global logger writing coloured text to stdout and
// JSON to a rotated file under dataDir/logs.
func InitLogger(dataDir string, debug bool) error {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, FileName),
		MaxSize:    5, // MB
		MaxBackups: 7,
		MaxAge:     30, // days
		Compress:   true,
		LocalTime:  true,
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	Logger = New(zapcore.Lock(os.Stdout), zapcore.AddSync(rotating), level)
	zap.ReplaceGlobals(Logger)
	return nil
}

// New builds a logger teeing a console encoder to console and a JSON
// encoder to file.
func New(console, file zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	fileConfig := encoderConfig
	fileConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), console, level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), file, level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// GetLogWriter returns an io.Writer that logs each write at Warn level,
// for libraries that only accept a *log.Logger.
func GetLogWriter() io.Writer {
	l := Logger
	if l == nil {
		l = zap.L()
	}
	return &logWriter{logger: l}
}

type logWriter struct {
	logger *zap.Logger
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.Warn(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
