// Package klog is the kernel's diagnostic writer, modeled on mazboot's
// uartPuts/uartPutHex64 family (main/kernel.go): instead of composing a
// fmt-style format string (which allocates), callers build a line out of a
// small set of cheap field writers, and Logger builds the whole line in one
// buffer and hands it to the backing io.Writer in a single Write call.
package klog

import (
	"io"
	"strconv"
)

// Level is the diagnostic severity, ordered most to least routine.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Halter is invoked by Fatal after the diagnostic line is flushed. In
// production this disables interrupts and halts the BSP (spec §7); tests
// substitute a no-op or a panic so unit tests observe the Fatal call.
type Halter func()

// Logger writes leveled, field-based diagnostics to an underlying writer.
type Logger struct {
	w      io.Writer
	halt   Halter
	prefix string
}

// New builds a Logger writing to w. halt may be nil, in which case Fatal
// only writes the line and returns (used by tests that want to observe
// the Fatal call site without terminating).
func New(w io.Writer, prefix string, halt Halter) *Logger {
	return &Logger{w: w, prefix: prefix, halt: halt}
}

// Field is one key=value pair rendered onto a diagnostic line.
type Field struct {
	Key string
	Val string
}

// Str builds a string field.
func Str(key, val string) Field { return Field{Key: key, Val: val} }

// Hex builds a field rendered as a 0x-prefixed hexadecimal uint64.
func Hex(key string, val uint64) Field {
	return Field{Key: key, Val: "0x" + strconv.FormatUint(val, 16)}
}

// Int builds a field rendered as a base-10 integer.
func Int(key string, val int64) Field {
	return Field{Key: key, Val: strconv.FormatInt(val, 10)}
}

// Bool builds a field rendered as true/false.
func Bool(key string, val bool) Field {
	return Field{Key: key, Val: strconv.FormatBool(val)}
}

func (l *Logger) emit(level Level, msg string, fields []Field) {
	buf := make([]byte, 0, 128)
	buf = append(buf, '[')
	buf = append(buf, level.String()...)
	buf = append(buf, ']', ' ')
	if l.prefix != "" {
		buf = append(buf, l.prefix...)
		buf = append(buf, ':', ' ')
	}
	buf = append(buf, msg...)
	for _, f := range fields {
		buf = append(buf, ' ')
		buf = append(buf, f.Key...)
		buf = append(buf, '=')
		buf = append(buf, f.Val...)
	}
	buf = append(buf, '\r', '\n')
	l.w.Write(buf)
}

// Info logs a routine diagnostic.
func (l *Logger) Info(msg string, fields ...Field) { l.emit(LevelInfo, msg, fields) }

// Warn logs a recoverable anomaly (device-registration rename, pile miss).
func (l *Logger) Warn(msg string, fields ...Field) { l.emit(LevelWarn, msg, fields) }

// Fatal logs and then halts the BSP per spec §7's fatal-boot-error policy.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.emit(LevelFatal, msg, fields)
	if l.halt != nil {
		l.halt()
	}
}
