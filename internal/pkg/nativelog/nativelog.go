package nativelog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogDir          = "TBI_LOG_DIR"
	defaultLogFilePerm = 0o644
	defaultLogDirPerm  = 0o755
)

// ResolveDir resolves the log directory path.
func ResolveDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return dir
	}
	return filepath.Join(".", "logs")
}

// todayFilename returns the daily log filename.
func todayFilename(now time.Time) string {
	return "server_" + now.Format("2006-01-02") + ".log"
}

// Writer appends log lines to a daily file.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates a daily-file log writer.
func NewWriter() (*Writer, error) {
	dir := ResolveDir()
	if err := os.MkdirAll(dir, defaultLogDirPerm); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, todayFilename(time.Now()))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultLogFilePerm)
	if err != nil {
		return 0, err
	}

	n, writeErr := file.Write(p)
	closeErr := file.Close()
	if writeErr != nil {
		return n, writeErr
	}
	return n, closeErr
}

func (w *Writer) Sync() error { return nil }

// NewZapLogger creates a zap logger writing to stdout and the daily log file.
func NewZapLogger() (*zap.Logger, error) {
	writer, err := NewWriter()
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(encoder, zapcore.AddSync(writer), level),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(logger)
	return logger, nil
}
