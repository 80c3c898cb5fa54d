package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	nocolor   = "0"
	red       = "31"
	green     = "38;5;48"
	yellow    = "33"
	gray      = "38;5;251"
	lightgray = "38;5;243"
	cyan      = "1;36"
)

const DateFormat = "2006-01-02 15:04:05"

// Logger is the shared logging interface for kubegate. Loggers are safe for
// concurrent use.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Notice(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)

	WithFields(fields ...Field) Logger
	SetLevel(level Level)
	Level() Level
}

// ConsoleLogger is a Logger that writes through a Printer. Fatal invokes the
// exit function with code 1 after printing.
type ConsoleLogger struct {
	printer Printer
	level   Level
	fields  Fields
	exitFn  func(int)
	mu      *sync.Mutex
}

func NewConsoleLogger(printer Printer, exitFn func(int)) Logger {
	return &ConsoleLogger{
		printer: printer,
		level:   NOTICE,
		exitFn:  exitFn,
		mu:      &sync.Mutex{},
	}
}

// WithFields returns a copy of the logger that appends the fields to
// every line it prints.
func (l *ConsoleLogger) WithFields(fields ...Field) Logger {
	clone := *l
	clone.fields = append(clone.fields[:len(clone.fields):len(clone.fields)], fields...)
	return &clone
}

func (l *ConsoleLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *ConsoleLogger) Debug(format string, v ...any) {
	if l.Level() <= DEBUG {
		l.printer.Print(DEBUG, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Info(format string, v ...any) {
	if l.Level() <= INFO {
		l.printer.Print(INFO, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Warn(format string, v ...any) {
	if l.Level() <= WARN {
		l.printer.Print(WARN, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Notice(format string, v ...any) {
	if l.Level() <= NOTICE {
		l.printer.Print(NOTICE, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Error(format string, v ...any) {
	l.printer.Print(ERROR, fmt.Sprintf(format, v...), l.fields)
}

func (l *ConsoleLogger) Fatal(format string, v ...any) {
	l.printer.Print(FATAL, fmt.Sprintf(format, v...), l.fields)
	l.exitFn(1)
}

// Printer formats a single log line.
type Printer interface {
	Print(level Level, msg string, fields Fields)
}

// TextPrinter writes human-readable lines, with ANSI colors when the
// output supports them.
type TextPrinter struct {
	Colors bool

	writer io.Writer
	mu     sync.Mutex
}

func NewTextPrinter(w io.Writer) *TextPrinter {
	return &TextPrinter{
		writer: w,
		Colors: ColorsSupported(),
	}
}

func (p *TextPrinter) Print(level Level, msg string, fields Fields) {
	now := time.Now().Format(DateFormat)
	suffix := ""
	for _, f := range fields {
		suffix += fmt.Sprintf(" %s=%s", f.Key(), f.String())
	}

	var line string
	if p.Colors {
		levelColor := green
		messageColor := nocolor

		switch level {
		case DEBUG:
			levelColor = gray
			messageColor = gray
		case NOTICE:
			levelColor = cyan
		case WARN:
			levelColor = yellow
		case ERROR, FATAL:
			levelColor = red
			if level == FATAL {
				messageColor = red
			}
		}

		line = fmt.Sprintf("\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m\x1b[%sm%s\x1b[0m\n",
			levelColor, now, level, messageColor, msg, lightgray, suffix)
	} else {
		line = fmt.Sprintf("%s %-6s %s%s\n", now, level, msg, suffix)
	}

	// One line at a time so concurrent loggers don't interleave
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, line)
}

// JSONPrinter writes one JSON object per line with ts, level and msg keys
// plus any fields.
type JSONPrinter struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

func (p *JSONPrinter) Print(level Level, msg string, fields Fields) {
	buf := fmt.Sprintf("{%s:%s,%s:%s,%s:%s",
		jsonString("ts"), jsonString(time.Now().Format(DateFormat)),
		jsonString("level"), jsonString(level.String()),
		jsonString("msg"), jsonString(msg),
	)
	for _, f := range fields {
		buf += fmt.Sprintf(",%s:%s", jsonString(f.Key()), jsonString(f.String()))
	}
	buf += "}\n"

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, buf)
}

func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// ColorsSupported reports whether stdout is a terminal capable of
// displaying ANSI colors.
func ColorsSupported() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Discard logs nothing, for use as a default in tests and optional hooks.
var Discard = &ConsoleLogger{
	printer: NewTextPrinter(io.Discard),
	exitFn:  func(int) {},
	mu:      &sync.Mutex{},
}
