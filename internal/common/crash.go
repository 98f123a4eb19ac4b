// -----------------------------------------------------------------------
// Crash reports for panics that escape the pipeline
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// CrashLogDir is where crash reports are written. InstallCrashHandler sets it.
var CrashLogDir = "./logs"

// InstallCrashHandler prepares the crash report directory. An empty logDir
// uses the directory the file logger writes to.
func InstallCrashHandler(logDir string) {
	if logDir == "" {
		logDir = logsDirectory()
	}
	CrashLogDir = logDir

	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

// WriteCrashFile writes a crash report with the panic, the panicking stack,
// every goroutine and memory stats. Returns the report path, or "" when the
// report could only be written to stderr.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("valuescreen-crash-%s.log", now.Format("2006-01-02T15-04-05")))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b strings.Builder
	fmt.Fprintf(&b, "=== VALUESCREEN CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\nVersion: %s\n\n", now.Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&b, "=== STACK TRACE ===\n%s\n\n", stackTrace)
	fmt.Fprintf(&b, "=== ALL GOROUTINES (%d) ===\n%s\n\n", runtime.NumGoroutine(), GetAllGoroutineStacks())
	fmt.Fprintf(&b, "=== RUNTIME ===\nGOOS/GOARCH: %s/%s\nNumCPU: %d\nAlloc: %d MB\nSys: %d MB\nNumGC: %d\n",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(),
		memStats.Alloc/1024/1024, memStats.Sys/1024/1024, memStats.NumGC)

	report := b.String()

	// Unbuffered write and sync, the process is about to exit
	file, err := os.OpenFile(crashPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create crash file: %v\n%s", err, report)
		return ""
	}
	if _, err := file.WriteString(report); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, report)
	}
	file.Sync()
	file.Close()

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", crashPath, panicVal)
	return crashPath
}

// GetAllGoroutineStacks returns the stacks of every goroutine, growing the
// buffer up to 64 MB.
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverWithCrashFile writes a crash report for a panic and exits.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}
