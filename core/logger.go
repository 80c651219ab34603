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

// LogLevel controls which log entries are emitted
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the uppercase name of the level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLogLevel converts a level name to a LogLevel.
// Unknown names default to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ProductionLogger is the standard structured logger.
// It emits JSON in Kubernetes (or when configured) for log aggregation
// and human-readable text for local development. Error output is rate
// limited to prevent log flooding during sustained failures.
//
// Every entry carries the service name and a component field so
// aggregated logs can be filtered per subsystem. Use WithComponent to
// derive a scoped logger for a subsystem; configuration is inherited.
type ProductionLogger struct {
	level          LogLevel
	serviceName    string
	component      string
	format         string
	timeFormat     string
	output         io.Writer
	metricsEnabled bool

	mu sync.Mutex

	// Rate limiting to prevent log flooding during failures
	errorLimiter *logRateLimiter

	// Optional metrics emission when telemetry is wired in
	telemetry Telemetry
}

// NewProductionLogger creates a logger from logging and development
// configuration. Configuration priority:
//  1. Explicit configuration (highest)
//  2. Environment detection (Kubernetes)
//  3. Defaults (lowest)
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	level := ParseLogLevel(logging.Level)
	if dev.DebugLogging {
		level = LogLevelDebug
	}

	format := logging.Format
	if format == "" {
		// JSON in K8s for log aggregation, text everywhere else
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		} else {
			format = "text"
		}
	}
	if dev.PrettyLogs {
		format = "text"
	}

	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	timeFormat := logging.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}

	return &ProductionLogger{
		level:        level,
		serviceName:  serviceName,
		component:    "planner/core",
		format:       format,
		timeFormat:   timeFormat,
		output:       output,
		errorLimiter: newLogRateLimiter(1 * time.Second),
	}
}

// WithComponent returns a new logger stamped with the given component.
// The parent's configuration (level, format, service name) is inherited.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:          l.level,
		serviceName:    l.serviceName,
		component:      component,
		format:         l.format,
		timeFormat:     l.timeFormat,
		output:         l.output,
		metricsEnabled: l.metricsEnabled,
		errorLimiter:   l.errorLimiter,
		telemetry:      l.telemetry,
	}
}

// SetTelemetry wires a telemetry sink for log entry metrics.
// Called during assembly once the telemetry provider exists.
func (l *ProductionLogger) SetTelemetry(t Telemetry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.telemetry = t
	l.metricsEnabled = t != nil
}

// Info logs informational messages
func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LogLevelInfo, msg, fields)
}

// Warn logs warning messages
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LogLevelWarn, msg, fields)
}

// Error logs error messages with rate limiting
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	// Rate limit error logs to prevent flooding during failures
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log(LogLevelError, msg, fields)
}

// Debug logs debug messages
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LogLevelDebug, msg, fields)
}

func (l *ProductionLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	timeFormat := l.timeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	timestamp := time.Now().Format(timeFormat)

	l.mu.Lock()
	if l.format == "json" {
		l.logJSON(timestamp, level.String(), msg, fields)
	} else {
		l.logText(timestamp, level.String(), msg, fields)
	}
	l.mu.Unlock()

	l.emitLogMetric(level.String())
}

// logJSON outputs structured JSON logs
func (l *ProductionLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	logEntry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"component": l.component,
		"message":   msg,
	}

	for k, v := range fields {
		// Avoid overwriting core fields
		if k != "timestamp" && k != "level" && k != "service" && k != "component" && k != "message" {
			logEntry[k] = v
		}
	}

	if data, err := json.Marshal(logEntry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

// logText outputs human-readable text logs for local development.
// Text format omits the component field; component scoping is for
// JSON log aggregation.
func (l *ProductionLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		// Surface error first for readability
		if err, ok := fields["error"]; ok {
			fieldStr.WriteString(fmt.Sprintf("error=%q ", fmt.Sprintf("%v", err)))
		}
		for k, v := range fields {
			if k == "error" {
				continue
			}
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}

	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n",
		timestamp, level, l.serviceName, msg, fieldStr.String())
}

func (l *ProductionLogger) emitLogMetric(level string) {
	if !l.metricsEnabled || l.telemetry == nil {
		return
	}
	l.telemetry.RecordMetric("log.entries", 1.0, map[string]string{
		"level":     level,
		"service":   l.serviceName,
		"component": l.component,
	})
}

// createComponentLogger scopes a logger to a component when it supports
// component awareness, otherwise returns the logger unchanged.
func createComponentLogger(logger Logger, component string) Logger {
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}

// logRateLimiter allows at most one event per interval
type logRateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newLogRateLimiter(interval time.Duration) *logRateLimiter {
	return &logRateLimiter{interval: interval}
}

// Allow reports whether an event may proceed now
func (r *logRateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
