package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the session file logger for risk decisions. Every denial,
// emergency action and threshold breach goes through it with the
// before/after metric values, so a session log reads as an audit trail.
type Logger struct {
	account string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo      LogLevel = "INFO"
	LogLevelWarning   LogLevel = "WARN"
	LogLevelError     LogLevel = "ERROR"
	LogLevelRisk      LogLevel = "RISK"
	LogLevelEmergency LogLevel = "EMERGENCY"
	LogLevelStatus    LogLevel = "STATUS"
)

// NewLogger creates a session file logger named after the account id.
func NewLogger(account string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("risk_%s_%s.log", account, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		account: account,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
	}

	l.writeSessionHeader()

	return l, nil
}

// NewWriterLogger builds a logger over an arbitrary writer. Tests use
// it to capture output without touching the filesystem.
func NewWriterLogger(account string, w io.Writer) *Logger {
	return &Logger{
		account: account,
		logger:  log.New(w, "", 0),
	}
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🛡️ RISK MANAGEMENT SESSION STARTED
================================================================================
Account: %s
Started: %s
================================================================================
`, l.account, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Risk logs a risk gate decision
func (l *Logger) Risk(format string, args ...interface{}) {
	l.Log(LogLevelRisk, format, args...)
}

// Emergency logs an emergency protection action
func (l *Logger) Emergency(format string, args ...interface{}) {
	l.Log(LogLevelEmergency, format, args...)
}

// Status logs periodic account/risk status
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogDenial records a rejected trade with the breached threshold and
// the metric values that drove the decision.
func (l *Logger) LogDenial(symbol, check string, current, limit float64, reason string) {
	l.Risk("DENIED %s | %s: current=%.2f limit=%.2f | %s", symbol, check, current, limit, reason)
}

// LogEmergencyAction records a protective action with before/after metrics.
func (l *Logger) LogEmergencyAction(action string, before, after float64, detail string) {
	l.Emergency("%s | before=%.2f after=%.2f | %s", action, before, after, detail)
}

// LogStopMove records a trailing stop modification.
func (l *Logger) LogStopMove(symbol, ticket string, oldStop, newStop float64) {
	l.Info("Trailing stop %s #%s: %.5f -> %.5f", symbol, ticket, oldStop, newStop)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
🛑 RISK MANAGEMENT SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, time.Now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("risk_%s_%s.log", l.account, timestamp)
	return filepath.Join(l.logDir, filename)
}
