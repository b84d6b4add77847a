// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration options.
type Config struct {
	Level string // debug|info|warn|error
	// File, when set, receives a JSON copy of every entry.
	File       string
	MaxSize    int // megabytes
	MaxBackups int
}

// New creates a logger writing console output to stderr and, if
// cfg.File is set, JSON entries to a rotated file.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "ts"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), writer, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync() //nolint:errcheck // stderr sync fails on terminals
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// TaskID returns a zap field for the session task id.
func TaskID(id string) zap.Field { return zap.String("task_id", id) }

// PID returns a zap field for a process id.
func PID(pid int) zap.Field { return zap.Int("pid", pid) }

// PPID returns a zap field for a parent process id.
func PPID(ppid int) zap.Field { return zap.Int("ppid", ppid) }

// Cmd returns a zap field for a command name.
func Cmd(cmd string) zap.Field { return zap.String("cmd", cmd) }

// FullCmd returns a zap field for a full command line.
func FullCmd(cmd string) zap.Field { return zap.String("full_cmd", cmd) }

// Dir returns a zap field for a directory.
func Dir(dir string) zap.Field { return zap.String("dir", dir) }

// Path returns a zap field for a file path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Daemon returns a zap field for a daemon name.
func Daemon(name string) zap.Field { return zap.String("daemon", name) }

// State returns a zap field for an orchestrator state.
func State(state string) zap.Field { return zap.String("state", state) }

// Analyzer returns a zap field for an analyzer tag.
func Analyzer(tag string) zap.Field { return zap.String("analyzer", tag) }

// Count returns a zap field for a number of items.
func Count(n int) zap.Field { return zap.Int("count", n) }
