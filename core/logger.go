package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Log levels in increasing severity
const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// ProductionLogger writes structured JSON log records to an io.Writer.
// It is safe for concurrent use. Records carry a timestamp, level, message
// and the caller-supplied fields, matching the Logger interface used across
// all pipeline components.
type ProductionLogger struct {
	mu      sync.Mutex
	out     io.Writer
	level   int
	service string
}

// NewProductionLogger creates a logger writing to stdout at the given level.
// Unknown levels default to info.
func NewProductionLogger(service, level string) *ProductionLogger {
	return NewProductionLoggerWithWriter(service, level, os.Stdout)
}

// NewProductionLoggerWithWriter creates a logger with an explicit writer.
// Tests use this to capture output.
func NewProductionLoggerWithWriter(service, level string, out io.Writer) *ProductionLogger {
	return &ProductionLogger{
		out:     out,
		level:   parseLevel(level),
		service: service,
	}
}

func parseLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Info logs at info level
func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "info", msg, fields)
}

// Error logs at error level
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "error", msg, fields)
}

// Warn logs at warn level
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "warn", msg, fields)
}

// Debug logs at debug level
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "debug", msg, fields)
}

func (l *ProductionLogger) log(level int, levelName, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		record[k] = v
	}
	record["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["level"] = levelName
	record["msg"] = msg
	if l.service != "" {
		record["service"] = l.service
	}

	data, err := json.Marshal(record)
	if err != nil {
		// Fields that cannot marshal still deserve a trace of the message.
		data = []byte(fmt.Sprintf(`{"level":%q,"msg":%q,"marshal_error":%q}`, levelName, msg, err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}
