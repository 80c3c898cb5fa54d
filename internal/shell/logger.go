package shell

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger formats the shell's own narration: headers for each phase, comments
// for progress, prompts for the commands being run.
type Logger interface {
	io.Writer

	// Printf prints a plain line of output
	Printf(format string, v ...any)

	// Headerf prints a section header, e.g `~~~ Installing packages`
	Headerf(format string, v ...any)

	// Commentf prints a comment line, e.g `# Wrote /etc/yum.repos.d/kubernetes.repo`
	Commentf(format string, v ...any)

	// Errorf shows a formatted error and expands the section it is in
	Errorf(format string, v ...any)

	// Warningf shows a formatted warning
	Warningf(format string, v ...any)

	// Promptf prints a shell prompt, e.g `$ yum install -y kubeadm`
	Promptf(format string, v ...any)
}

// StderrLogger logs to stderr in color. It is the logger of a gate run on a
// real terminal.
var StderrLogger = &WriterLogger{
	Writer: os.Stderr,
	Ansi:   true,
}

// DiscardLogger drops everything.
var DiscardLogger = &WriterLogger{
	Writer: io.Discard,
}

// WriterLogger writes log lines to an io.Writer, optionally colored.
type WriterLogger struct {
	Writer io.Writer
	Ansi   bool
}

func NewWriterLogger(writer io.Writer, ansi bool) *WriterLogger {
	return &WriterLogger{
		Writer: writer,
		Ansi:   ansi,
	}
}

func (wl *WriterLogger) Write(b []byte) (int, error) {
	wl.Printf("%s", b)
	return len(b), nil
}

func (wl *WriterLogger) Printf(format string, v ...any) {
	fmt.Fprintf(wl.Writer, format+"\n", v...) //nolint:errcheck // nowhere to report a failed log write
}

func (wl *WriterLogger) Headerf(format string, v ...any) {
	fmt.Fprintf(wl.Writer, "~~~ "+format+"\n", v...) //nolint:errcheck // nowhere to report a failed log write
}

func (wl *WriterLogger) Commentf(format string, v ...any) {
	wl.colorf("90", "# "+format, v...)
}

func (wl *WriterLogger) Errorf(format string, v ...any) {
	wl.colorf("31", "🚨 Error: "+format, v...)
	// Expand the section the error is buried in.
	wl.Printf("^^^ +++")
}

func (wl *WriterLogger) Warningf(format string, v ...any) {
	wl.colorf("33", "⚠️ Warning: "+format, v...)
	wl.Printf("^^^ +++")
}

func (wl *WriterLogger) Promptf(format string, v ...any) {
	if wl.Ansi {
		wl.Printf(ansiColor("$", "90")+" "+format, v...)
		return
	}
	wl.Printf("$ "+format, v...)
}

// colorf prints the line wrapped in the given ANSI attribute when colors are
// on.
func (wl *WriterLogger) colorf(attr, format string, v ...any) {
	if wl.Ansi {
		format = ansiColor(format, attr)
	}
	wl.Printf(format, v...)
}

func ansiColor(s, attributes string) string {
	return fmt.Sprintf("\033[%sm%s\033[0m", attributes, s)
}

// LoggerStreamer turns a byte stream into logger lines. The debug tee uses it
// to reflect command output into the shell's logger.
type LoggerStreamer struct {
	Logger Logger
	buf    bytes.Buffer
}

func NewLoggerStreamer(logger Logger) *LoggerStreamer {
	return &LoggerStreamer{Logger: logger}
}

func (l *LoggerStreamer) Write(p []byte) (int, error) {
	l.buf.Write(p)

	// Log every complete line, keep the partial tail buffered.
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(l.buf.Next(i + 1))
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		l.Logger.Printf("%s", line)
	}
	return len(p), nil
}

// Close logs whatever is left in the buffer as a final line.
func (l *LoggerStreamer) Close() error {
	if l.buf.Len() > 0 {
		l.Logger.Printf("%s", l.buf.String())
		l.buf.Reset()
	}
	return nil
}
