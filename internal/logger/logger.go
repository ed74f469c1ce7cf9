// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Запись буферизуется (zapcore.BufferedWriteSyncer), чтобы не блокировать основное приложение.
// Поддерживается логирование времени выполнения функций.
package logger

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	asyncBufferSize    = 256 << 10
	asyncFlushInterval = time.Second
	slowCallThreshold  = 100 * time.Millisecond
)

var (
	mu     sync.RWMutex
	prefix string
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	ws     *zapcore.BufferedWriteSyncer
	debug  bool
	once   sync.Once
)

func initLevel() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		debug = true
	default:
		debug = false
	}
}

func initLogger() {
	initLevel()
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	ws = &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(os.Stderr),
		Size:          asyncBufferSize,
		FlushInterval: asyncFlushInterval,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
	base = zap.New(core)
	rebuild()
}

// rebuild пересобирает sugared-логгер с текущим префиксом. Вызывается под mu.
func rebuild() {
	l := base
	if prefix != "" {
		l = l.Named(prefix)
	}
	sugar = l.Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(func() {
		mu.Lock()
		initLogger()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "headless").
func SetPrefix(p string) {
	get()
	mu.Lock()
	prefix = p
	rebuild()
	mu.Unlock()
}

// Sync сбрасывает буфер на диск. Вызывать перед выходом из main.
func Sync() {
	get()
	mu.RLock()
	defer mu.RUnlock()
	if ws != nil {
		_ = ws.Sync()
	}
}

// Info пишет в лог с префиксом.
func Info(v ...any) {
	get().Info(v...)
}

// Infof форматирует и пишет с префиксом.
func Infof(format string, v ...any) {
	get().Infof(format, v...)
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	get().Debugf(format, v...)
}

// Error пишет ошибку с префиксом.
func Error(v ...any) {
	get().Error(v...)
}

// Errorf форматирует ошибку с префиксом.
func Errorf(format string, v ...any) {
	get().Errorf(format, v...)
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug: все.
func LogDuration(fn string, start time.Time) {
	l := get()
	elapsed := time.Since(start)
	if debug || elapsed >= slowCallThreshold {
		l.Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
