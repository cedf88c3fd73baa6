package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	mu       sync.Mutex
	level    = INFO
	out      io.Writer = os.Stderr
	fileOut  *os.File
	filePath string
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// SetLogFile mirrors log output to a file in addition to stderr.
// The directory is created if needed.
func SetLogFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if fileOut != nil {
		fileOut.Close()
		fileOut = nil
	}
	if path == "" {
		filePath = ""
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fileOut = f
	filePath = path
	return nil
}

// LogFilePath returns the current log file path, if any.
func LogFilePath() string {
	mu.Lock()
	defer mu.Unlock()
	return filePath
}

// SetOutput replaces the default writer. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

func logf(l Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	line := fmt.Sprintf("%s [%s] %s: %s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		l.String(), component, msg)
	if len(fields) > 0 {
		line += " " + formatFields(fields)
	}
	fmt.Fprintln(out, line)
	if fileOut != nil {
		fmt.Fprintln(fileOut, line)
	}
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		switch tv := v.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s=%q", k, tv))
		case error:
			parts = append(parts, fmt.Sprintf("%s=%q", k, tv.Error()))
		case int, int32, int64, uint64, float32, float64, bool:
			parts = append(parts, fmt.Sprintf("%s=%v", k, tv))
		default:
			encoded, err := json.Marshal(tv)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%s=%v", k, tv))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", k, encoded))
		}
	}
	return strings.Join(parts, " ")
}

func DebugC(component, msg string) { logf(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { logf(INFO, component, msg, nil) }
func WarnC(component, msg string)  { logf(WARN, component, msg, nil) }
func ErrorC(component, msg string) { logf(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	logf(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	logf(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	logf(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	logf(ERROR, component, msg, fields)
}

// Close flushes and closes the log file, if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fileOut != nil {
		fileOut.Close()
		fileOut = nil
	}
}
