package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() string {
	switch l {
	case LevelDebug:
		return ColorBlue
	case LevelInfo:
		return ColorGreen
	case LevelWarn:
		return ColorYellow
	default:
		return ColorRed
	}
}

// ParseLevel accepts the names used on the command line.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type Config struct {
	Level Level
	// Console receives every line; colour codes are added only when it is a terminal.
	Console io.Writer
	// Dir and FileName select the rotating log file. An empty FileName disables it.
	Dir        string
	FileName   string
	MaxSizeMB  int
	MaxAgeDays int
}

type sink struct {
	logger *log.Logger
	color  bool
}

// Logger is created once per process and handed to every component that logs.
type Logger struct {
	level Level
	sinks []sink
	file  *lumberjack.Logger
}

func New(cfg Config) *Logger {
	l := &Logger{level: cfg.Level}
	if cfg.Console != nil {
		l.sinks = append(l.sinks, sink{
			logger: log.New(cfg.Console, "", log.Ldate|log.Ltime|log.Lmicroseconds),
			color:  isTerminal(cfg.Console),
		})
	}
	if cfg.FileName != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		l.file = &lumberjack.Logger{
			Filename: filepath.Join(cfg.Dir, cfg.FileName),
			MaxSize:  maxSize, // megabytes
			MaxAge:   cfg.MaxAgeDays,
		}
		l.sinks = append(l.sinks, sink{
			logger: log.New(l.file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		})
	}
	return l
}

// NewWriter logs plain lines to w only.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		level: level,
		sinks: []sink{{logger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)}},
	}
}

// DefaultFileName mirrors the <tool>-<timestamp>.log naming operators already grep for.
func DefaultFileName(tool string, now time.Time) string {
	return fmt.Sprintf("%s-%s.log", tool, now.Format("02-01-2006_15:04:05"))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) write(level Level, category string, message string) {
	if !l.Enabled(level) {
		return
	}
	for _, s := range l.sinks {
		tag := fmt.Sprintf("[%s][%s]", level, category)
		if s.color {
			tag = level.color() + tag + ColorReset
		}
		s.logger.Printf("%s: %s", tag, message)
	}
}

func (l *Logger) Info(category string, content ...interface{}) {
	l.write(LevelInfo, category, fmt.Sprint(content...))
}

func (l *Logger) Error(category string, content ...interface{}) {
	l.write(LevelError, category, fmt.Sprint(content...))
}

func (l *Logger) Warn(category string, content ...interface{}) {
	l.write(LevelWarn, category, fmt.Sprint(content...))
}

func (l *Logger) Debug(category string, content ...interface{}) {
	l.write(LevelDebug, category, fmt.Sprint(content...))
}

func (l *Logger) Infof(category string, format string, args ...interface{}) {
	l.write(LevelInfo, category, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(category string, format string, args ...interface{}) {
	l.write(LevelWarn, category, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(category string, format string, args ...interface{}) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.write(LevelDebug, category, fmt.Sprintf(format, args...))
}

// Errorf logs an error message and returns a formatted error
func (l *Logger) Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	l.Error("ERROR", err.Error())
	return err
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
