// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
	logger *log.Logger
}

var (
	baseMu       sync.RWMutex
	baseLogger   = log.New(os.Stdout, "", log.LstdFlags)
	logFile      *os.File
	debugEnabled bool
	debugMu      sync.RWMutex
)

// Init tees all loggers to stdout and the given file, creating the
// parent directory if needed. Debug output is enabled when DEBUG is set.
func Init(logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	baseMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	baseLogger = newBaseLogger(io.MultiWriter(os.Stdout, f))
	baseMu.Unlock()

	if os.Getenv("DEBUG") != "" {
		EnableDebug(true)
	}
	return nil
}

// SetOutput redirects every logger to w. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	baseMu.Lock()
	baseLogger = newBaseLogger(w)
	baseMu.Unlock()
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	baseLogger = newBaseLogger(os.Stdout)
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// Writer returns the current base writer, e.g. for HTTP access logs.
func Writer() io.Writer {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger.Writer()
}

func (l *Logger) output(level, msg string) {
	baseMu.RLock()
	b := baseLogger
	baseMu.RUnlock()
	b.Printf("[%s] %s: %s", l.prefix, level, msg)
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.output("INFO", fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.output("WARN", fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.output("ERROR", withCaller(fmt.Sprintf(fmtstr, v...)))
}

func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	l.output("FATAL", withCaller(formatted))
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	l.output("DEBUG", fmt.Sprintf(fmtstr, v...))
}

// withCaller prefixes msg with the file:line two frames up (the caller
// of Error/Fatal).
func withCaller(msg string) string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return msg
	}
	return fmt.Sprintf("(%s:%d) %s", filepath.Base(file), line, msg)
}

func newBaseLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags)
}
