// Package logger is the leveled diagnostic logger shared by mchown's packages.
// Everything goes to the diagnostic stream (stderr by default) so stdout only
// carries the run summary.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32
	logger       = stdlog.New(os.Stderr, "", 0)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

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

// ParseLevel maps a level name to a Level. Unknown names yield LevelInfo
// and false.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

func SetLevel(level Level) {
	currentLevel.Store(int32(level))
}

func GetLevel() Level {
	return Level(currentLevel.Load())
}

// SetOutput redirects all log output; tests use it to capture messages.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Enabled(level Level) bool {
	return level >= GetLevel()
}

func log(level Level, format string, v ...any) {
	if !Enabled(level) {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
