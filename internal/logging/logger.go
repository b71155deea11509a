// Package logging provides config-driven categorized logging for ba-agent.
// Every category is a named child of one process-wide zap logger. Output goes
// to stderr and, when a file is configured, to a rotating JSON log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and configuration
	CategoryAPI          Category = "api"          // Generation service calls
	CategoryExtract      Category = "extract"      // Document text/image extraction
	CategoryOrchestrator Category = "orchestrator" // Plan and specialist agents
	CategoryApproval     Category = "approval"     // Approval lifecycle
	CategoryTracker      Category = "tracker"      // Work item creation
	CategoryNotify       Category = "notify"       // Approval emails
	CategoryStore        Category = "store"        // SQLite persistence
	CategoryEmbedding    Category = "embedding"    // Embedding engine
	CategoryHTTP         Category = "http"         // HTTP server
	CategoryAudit        Category = "audit"        // Structured audit events
)

// Config controls logger construction. It mirrors config.LoggingConfig to
// avoid an import cycle.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // console or json (stderr only; files are always JSON)
	File       string          // optional log file path, rotated by lumberjack
	MaxSizeMB  int             // rotate after this many megabytes
	MaxBackups int             // rotated files to keep
	MaxAgeDays int             // days to keep rotated files
	Categories map[string]bool // category filter; missing categories are enabled
}

// Logger is a category-scoped logger with printf-style helpers.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
	rotator    *lumberjack.Logger
)

// Initialize builds the process logger. It may be called again to reconfigure.
func Initialize(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stderrEnc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		stderrEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		stderrEnc = zapcore.NewConsoleEncoder(consoleCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEnc, zapcore.Lock(os.Stderr), level),
	}

	var lj *lumberjack.Logger
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		lj = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 15),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(lj), level))
	}

	install(zap.New(zapcore.NewTee(cores...)), cfg.Categories, lj)
	Get(CategoryBoot).Debug("logging initialized: level=%s file=%q", level, cfg.File)
	return nil
}

// UseLogger installs an existing zap logger, e.g. one built by the CLI or
// zaptest in tests.
func UseLogger(l *zap.Logger) {
	install(l, nil, nil)
}

func install(l *zap.Logger, cats map[string]bool, lj *lumberjack.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil && rotator != lj {
		_ = rotator.Close()
	}
	base = l
	categories = cats
	rotator = lj
	loggers = make(map[Category]*Logger)
}

// Base returns the underlying zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries and closes the rotating file.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	err := base.Sync()
	if rotator != nil {
		_ = rotator.Close()
	}
	// Syncing stderr fails on some platforms; that is not worth reporting.
	if err != nil && strings.Contains(err.Error(), os.Stderr.Name()) {
		return nil
	}
	return err
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	enabled := IsCategoryEnabled(category)

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	z := zap.NewNop()
	if enabled {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Extract logs to the extract category
func Extract(format string, args ...interface{}) { Get(CategoryExtract).Info(format, args...) }

// ExtractError logs an error to the extract category
func ExtractError(format string, args ...interface{}) { Get(CategoryExtract).Error(format, args...) }

// Orchestrator logs to the orchestrator category
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorDebug logs debug to the orchestrator category
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

// OrchestratorWarn logs a warning to the orchestrator category
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

// OrchestratorError logs an error to the orchestrator category
func OrchestratorError(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Error(format, args...)
}

// Approval logs to the approval category
func Approval(format string, args ...interface{}) { Get(CategoryApproval).Info(format, args...) }

// ApprovalWarn logs a warning to the approval category
func ApprovalWarn(format string, args ...interface{}) { Get(CategoryApproval).Warn(format, args...) }

// ApprovalError logs an error to the approval category
func ApprovalError(format string, args ...interface{}) {
	Get(CategoryApproval).Error(format, args...)
}

// Tracker logs to the tracker category
func Tracker(format string, args ...interface{}) { Get(CategoryTracker).Info(format, args...) }

// TrackerDebug logs debug to the tracker category
func TrackerDebug(format string, args ...interface{}) { Get(CategoryTracker).Debug(format, args...) }

// TrackerError logs an error to the tracker category
func TrackerError(format string, args ...interface{}) { Get(CategoryTracker).Error(format, args...) }

// Notify logs to the notify category
func Notify(format string, args ...interface{}) { Get(CategoryNotify).Info(format, args...) }

// NotifyError logs an error to the notify category
func NotifyError(format string, args ...interface{}) { Get(CategoryNotify).Error(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs a warning to the store category
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingWarn logs a warning to the embedding category
func EmbeddingWarn(format string, args ...interface{}) {
	Get(CategoryEmbedding).Warn(format, args...)
}

// HTTP logs to the http category
func HTTP(format string, args ...interface{}) { Get(CategoryHTTP).Info(format, args...) }

// HTTPError logs an error to the http category
func HTTPError(format string, args ...interface{}) { Get(CategoryHTTP).Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
