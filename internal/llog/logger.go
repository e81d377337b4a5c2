// Package llog provides structured logging for the loader pipeline using zap.
package llog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with loader-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger. Safe to call multiple times; only
// the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With returns a Logger with the given fields preset on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Phase logs a pipeline phase transition (Load, Plan, Copy, Relocate, ...).
func (l *Logger) Phase(name string, fields ...zap.Field) {
	l.Info("phase", append([]zap.Field{zap.String("phase", name)}, fields...)...)
}

// Object logs an object-scoped event (map, load, link, entry).
func (l *Logger) Object(event, name string, fields ...zap.Field) {
	l.Debug(event, append([]zap.Field{zap.String("object", name)}, fields...)...)
}

// Reloc logs a single relocation write.
func (l *Logger) Reloc(object, relType string, offset, value uint64) {
	l.Debug("reloc",
		zap.String("object", object),
		zap.String("type", relType),
		zap.String("offset", Hex(offset)),
		zap.String("value", Hex(value)),
	)
}

// Protect logs a page-protection change.
func (l *Logger) Protect(object string, vaddr, vsize uint64, prot string) {
	l.Debug("protect",
		zap.String("object", object),
		zap.String("vaddr", Hex(vaddr)),
		zap.Uint64("vsize", vsize),
		zap.String("prot", prot),
	)
}

// Hex formats a uint64 as a 0x-prefixed hex string for logging.
func Hex(v uint64) string {
	return "0x" + hexString(v)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Addr creates an address field.
func Addr(name string, addr uint64) zap.Field {
	return zap.String(name, Hex(addr))
}
