package logger

import (
	"fmt"
	"sync"
)

// Buffer is a Logger that collects lines in memory. Tests assert against
// Messages directly.
type Buffer struct {
	mu       sync.Mutex
	Messages []string
}

// NewBuffer returns an empty Buffer. Messages starts non-nil so tests can
// compare against an empty []string.
func NewBuffer() *Buffer {
	return &Buffer{Messages: []string{}}
}

func (b *Buffer) log(prefix, format string, v ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Messages = append(b.Messages, prefix+fmt.Sprintf(format, v...))
}

func (b *Buffer) Debug(format string, v ...any)  { b.log("[debug] ", format, v...) }
func (b *Buffer) Info(format string, v ...any)   { b.log("[info] ", format, v...) }
func (b *Buffer) Warn(format string, v ...any)   { b.log("[warn] ", format, v...) }
func (b *Buffer) Notice(format string, v ...any) { b.log("[notice] ", format, v...) }
func (b *Buffer) Error(format string, v ...any)  { b.log("[error] ", format, v...) }
func (b *Buffer) Fatal(format string, v ...any)  { b.log("[fatal] ", format, v...) }

// WithFields drops the fields. Buffer assertions work on the bare messages.
func (b *Buffer) WithFields(...Field) Logger { return b }

func (b *Buffer) SetLevel(Level) {}

func (b *Buffer) Level() Level { return DEBUG }
